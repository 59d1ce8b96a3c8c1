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
	"os"

	"github.com/spf13/cobra"

	"github.com/sabouaram/serverino/config"
	"github.com/sabouaram/serverino/dispatch"
	liblog "github.com/sabouaram/serverino/logger"
)

// newRunCommand starts the daemon: it binds every configured listener and
// drives the event loop, re-exec'ing itself in "worker" mode
// to populate the pool.
func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the serverino daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lerr := config.LoadFile(cfgFile)
			if lerr != nil {
				return lerr
			}

			log := liblog.New(liblog.ParseLevel(cfg.LogLevel))

			exe, err := os.Executable()
			if err != nil {
				return err
			}

			d, err := dispatch.NewDispatcher(cfg, log, exe, []string{"worker", "-c", cfgFile})
			if err != nil {
				return err
			}

			if err := d.Listen(); err != nil {
				return err
			}

			return d.Run()
		},
	}
}
