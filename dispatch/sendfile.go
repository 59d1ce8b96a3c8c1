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

package dispatch

import (
	"bytes"
	"os"
)

// startSendFile handles a worker reply flagged FILE[_DELETE]: body is
// "headers\r\n\r\npath"; headers go straight to the send buffer and path
// is opened for streaming.
func (d *Dispatcher) startSendFile(c *Communicator, body []byte, deleteAfter bool) {
	idx := bytes.Index(body, []byte("\r\n\r\n"))
	if idx < 0 {
		d.reset(c)
		return
	}
	headers := body[:idx+4]
	path := string(body[idx+4:])

	f, err := os.Open(path)
	if err != nil {
		d.reset(c)
		return
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		d.reset(c)
		return
	}

	c.sendBuf.Append(headers)
	c.isSendFile = true
	c.file = f
	c.responseLength = uint64(len(headers)) + uint64(fi.Size())
	if deleteAfter {
		c.fileToDelete = path
	}
}
