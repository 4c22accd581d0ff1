/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package runner holds the small set of process-wide helpers every
// runner/startStop-based worker defers to, kept separate from
// runner/startStop itself so packages that only need panic recovery
// don't pull in the full start/stop state machine.
package runner

import (
	"log"
)

// RecoveryCaller logs a panic recovered from a deferred recover() call,
// tagging it with the caller-supplied name so it can be traced back to
// the goroutine that panicked. A nil r is a no-op, matching the common
// `defer RecoveryCaller(name, recover())` call pattern where recover()
// returns nil on the non-panicking path.
func RecoveryCaller(name string, r interface{}) {
	if r == nil {
		return
	}
	log.Printf("recovered panic in %s: %v", name, r)
}
