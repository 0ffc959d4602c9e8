package storage

import "github.com/sirupsen/logrus"

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}

// Badger is chatty at info level; keep its startup noise at debug.
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
