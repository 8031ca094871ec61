package api

import (
    "github.com/sirupsen/logrus"
)

func (s *Server) logEvent(event string, fields logrus.Fields) {
    s.logger.WithFields(fields).Info(event)
}

func (s *Server) logFailure(event string, err error, fields logrus.Fields) {
    s.logger.WithFields(fields).WithError(err).Error(event)
}
