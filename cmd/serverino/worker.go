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

	"github.com/spf13/cobra"

	"github.com/sabouaram/serverino/config"
	liblog "github.com/sabouaram/serverino/logger"
	"github.com/sabouaram/serverino/runtime"
)

// newWorkerCommand is the hidden entrypoint the daemon re-execs itself
// with. It is never invoked directly by an operator.
func newWorkerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runtime.VerifyBuildHash(); err != nil {
				return err
			}

			cfg, lerr := config.LoadFile(cfgFile)
			if lerr != nil {
				return lerr
			}

			log := liblog.New(liblog.ParseLevel(cfg.LogLevel))

			rt, err := runtime.Dial(runtime.Config{
				MaxWorkerLifetime: cfg.MaxWorkerLifetime,
				MaxWorkerIdling:   cfg.MaxWorkerIdling,
				MaxRequestTime:    cfg.MaxRequestTime,
				Dynamic:           runtime.IsDynamic(),
			}, log)
			if err != nil {
				return err
			}

			return rt.Serve(echoHandler)
		},
	}
	return cmd
}

// echoHandler is the demo handler bundled with the cmd/serverino binary; a
// real deployment links against the runtime package and supplies its own.
func echoHandler(r *runtime.Request, w runtime.ResponseWriter) {
	body := fmt.Sprintf("%s %s\n", r.Method, r.Path)
	resp := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: keep-alive\r\n\r\n%s", len(body), body)
	w.Write([]byte(resp))
	w.SetKeepAlive(true)
}
