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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sabouaram/serverino/wsproc"
)

// newWebsocketCommand is the hidden entrypoint a Dispatcher re-execs itself
// with to handle an upgraded connection. The socket it inherits as fd 3
// (SERVERINO_WS_FD) carries the client fd via SCM_RIGHTS.
func newWebsocketCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "websocket",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fd, _, err := wsproc.RecvFD(3)
			if err != nil {
				return err
			}
			defer unix.Close(fd)

			// A real deployment would run its own websocket frame loop
			// over fd here; the demo binary just proves the handoff.
			fmt.Fprintf(os.Stderr, "websocket child received client fd %d\n", fd)
			return nil
		},
	}
	return cmd
}
