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

// Package config declares the daemon's enumerated configuration,
// validated with go-playground/validator the way httpserver.ServerConfig
// is, and loadable from YAML.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	liberr "github.com/sabouaram/serverino/errors"
)

const (
	ErrorValidate liberr.CodeError = iota + liberr.MinPkgConfig
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgConfig, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case ErrorValidate:
		return "config is not valid"
	}
	return ""
}

// Config is the complete, enumerated daemon configuration.
type Config struct {
	// Listeners are the TCP bind endpoints the daemon accepts on.
	Listeners []string `yaml:"listeners" validate:"required,min=1,dive,hostname_port"`

	// ListenerBacklog is the OS-level accept backlog per listener.
	ListenerBacklog int `yaml:"listener_backlog" validate:"gte=0"`

	// MinWorkers / MaxWorkers bound the worker pool.
	MinWorkers int `yaml:"min_workers" validate:"gte=1"`
	MaxWorkers int `yaml:"max_workers" validate:"gtefield=MinWorkers"`

	// MaxWorkerLifetime / MaxWorkerIdling / MaxRequestTime are worker-side
	// timers enforced by the worker's own killer monitor.
	MaxWorkerLifetime time.Duration `yaml:"max_worker_lifetime"`
	MaxWorkerIdling   time.Duration `yaml:"max_worker_idling"`
	MaxRequestTime    time.Duration `yaml:"max_request_time"`

	// MaxHTTPWaiting bounds daemon-side per-connection idle time while a
	// request is being read.
	MaxHTTPWaiting time.Duration `yaml:"max_http_waiting"`

	// KeepAliveTimeout is the idle window before an unpaired KEEP_ALIVE
	// Communicator is reset.
	KeepAliveTimeout time.Duration `yaml:"keep_alive_timeout"`

	// MaxRequestSize bounds headers + body together.
	MaxRequestSize int64 `yaml:"max_request_size" validate:"gt=0"`

	// MaxHeaderSize is not validator-required; zero falls back to 16 KiB in
	// Validate(). The daemon's header block search window is the fixed
	// proto.MaxHeaderWindow, and this field does not change it.
	MaxHeaderSize int `yaml:"max_header_size"`

	// RecvBufferSize is the per-read scratch buffer size (default 32 KiB).
	RecvBufferSize int `yaml:"recv_buffer_size"`

	KeepAlive    bool `yaml:"keep_alive"`
	WithRemoteIP bool `yaml:"with_remote_ip"`

	LogLevel string `yaml:"log_level"`
}

const (
	DefaultMaxHeaderSize  = 16 * 1024
	DefaultRecvBufferSize = 32 * 1024
	DefaultKeepAliveTO    = 5 * time.Second
	DefaultMaxHTTPWaiting = 10 * time.Second
)

// Defaults returns a Config with every unset-but-defaultable field filled
// in, matching the conservative stance of the original daemon.
func Defaults() Config {
	return Config{
		ListenerBacklog:  1024,
		MinWorkers:       2,
		MaxWorkers:       8,
		MaxWorkerLifetime: 30 * time.Minute,
		MaxWorkerIdling:   2 * time.Minute,
		MaxRequestTime:    30 * time.Second,
		MaxHTTPWaiting:    DefaultMaxHTTPWaiting,
		KeepAliveTimeout:  DefaultKeepAliveTO,
		MaxRequestSize:    10 * 1024 * 1024,
		MaxHeaderSize:     DefaultMaxHeaderSize,
		RecvBufferSize:    DefaultRecvBufferSize,
		KeepAlive:         true,
		LogLevel:          "info",
	}
}

// Clone deep-copies the Config (Listeners is the only reference field).
func (c Config) Clone() Config {
	n := c
	n.Listeners = append([]string(nil), c.Listeners...)
	return n
}

// Validate checks the struct tags above and fills in any zero-valued
// defaultable field before returning.
func (c *Config) Validate() liberr.Error {
	if c.MaxHeaderSize <= 0 {
		c.MaxHeaderSize = DefaultMaxHeaderSize
	}
	if c.RecvBufferSize <= 0 {
		c.RecvBufferSize = DefaultRecvBufferSize
	}
	if c.KeepAliveTimeout <= 0 {
		c.KeepAliveTimeout = DefaultKeepAliveTO
	}
	if c.MaxHTTPWaiting <= 0 {
		c.MaxHTTPWaiting = DefaultMaxHTTPWaiting
	}

	val := validator.New()
	if err := val.Struct(c); err != nil {
		out := ErrorValidate.Error(nil)
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				out.AddParent(fmt.Errorf("field %q fails constraint %q", fe.Field(), fe.ActualTag()))
			}
		} else {
			out.AddParent(err)
		}
		return out
	}
	return nil
}
