// Copyright 2020 Ahmad Sameh(asmsh)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package promise implements Promises/A+ style asynchronous values whose
// settlement propagates through a DAG of dependent Promises via callbacks
// registered at attach time.
//
// A Promise is a handle to shared, single-assignment state: it starts
// Unset, and settles exactly once, to either Fulfilled(value) or
// Rejected(error). Copying a *Promise pointer hands out another reference
// to the same state; the state is retained for as long as any handle or
// any unsettled dependent chain references it.
//
// Callbacks attached with Then/Except run synchronously on whichever
// goroutine performs the settling write -- there is no implicit "run on a
// new goroutine" behavior, and no guarantee of asynchronous execution: if
// a dependent is attached to an already-settled Promise, its callback runs
// synchronously on the attaching goroutine. Two companion packages drive
// Promises concurrently: promise/pool runs a fixed worker set that settles
// Promises handed to it, and promise/delay settles Promises at or after a
// requested deadline.
//
// A rejected Promise whose error was never observed by any dependent is
// reported, at destruction, to the process-global UndeliveredErrorHandler.
package promise
