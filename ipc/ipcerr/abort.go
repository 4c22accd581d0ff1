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

package ipcerr

import (
	"fmt"

	liblog "github.com/nabbar/golib/logger"
	loglvl "github.com/nabbar/golib/logger/level"
)

// AbortFunc is called in place of a real process abort so tests can
// observe the "the process aborts with a diagnostic" behaviour of spec §7
// without actually killing the test binary. Production code leaves this
// at its default, which panics.
var AbortFunc = func(msg string) { panic(msg) }

// Abort reports a programming error (spec §7 KindUnexpected: "all reactor
// errors except table full are treated as programming errors and abort
// the process"). It logs a diagnostic through log, if non-nil, then calls
// AbortFunc.
func Abort(log liblog.FuncLog, component, reason string, err error) {
	msg := fmt.Sprintf("safeipc: fatal programming error in %s: %s: %v", component, reason, err)

	if log != nil {
		if l := log(); l != nil {
			l.Entry(loglvl.FatalLevel, msg).Log()
		}
	}

	AbortFunc(msg)
}
