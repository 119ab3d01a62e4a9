//go:build !windows

/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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
 */

package logging

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
)

// syslogHook forwards logrus entries to the local syslog daemon,
// reproducing the severity mapping nabbar-golib/logger/hooksyslog
// builds against its own syslog client, but over the standard
// library's log/syslog transport (see DESIGN.md).
type syslogHook struct {
	writer *syslog.Writer
}

func newSyslogHook(tag string) (logrus.Hook, error) {
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, err
	}
	return &syslogHook{writer: w}, nil
}

func (h *syslogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *syslogHook) Fire(entry *logrus.Entry) error {
	msg, err := entry.String()
	if err != nil {
		msg = entry.Message
	}

	switch entry.Level {
	case logrus.PanicLevel:
		return h.writer.Emerg(msg)
	case logrus.FatalLevel:
		return h.writer.Crit(msg)
	case logrus.ErrorLevel:
		return h.writer.Err(msg)
	case logrus.WarnLevel:
		return h.writer.Warning(msg)
	case logrus.InfoLevel:
		return h.writer.Info(msg)
	default:
		return h.writer.Debug(msg)
	}
}
