package tracker

import (
	"context"
	"net/http"

	"github.com/timmy/reportextract/internal/client"
	"github.com/timmy/reportextract/internal/logger"
)

// Notifier announces finished runs. Calls are fire-and-forget.
type Notifier interface {
	ExtractionSucceeded(ctx context.Context, iModelName, feedURL string)
	ExtractionFailed(ctx context.Context, iModelName string)
}

// NotifierFuncs adapts two functions to Notifier. Nil funcs are skipped.
type NotifierFuncs struct {
	OnSuccess func(iModelName, feedURL string)
	OnFailure func(iModelName string)
}

func (n NotifierFuncs) ExtractionSucceeded(_ context.Context, iModelName, feedURL string) {
	if n.OnSuccess != nil {
		n.OnSuccess(iModelName, feedURL)
	}
}

func (n NotifierFuncs) ExtractionFailed(_ context.Context, iModelName string) {
	if n.OnFailure != nil {
		n.OnFailure(iModelName)
	}
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger *logger.Logger
}

func (n *LogNotifier) ExtractionSucceeded(ctx context.Context, iModelName, feedURL string) {
	n.log(ctx).WithFields(logger.Fields{
		"imodel_name": iModelName,
		"feed_url":    feedURL,
	}).Info("Extraction succeeded")
}

func (n *LogNotifier) ExtractionFailed(ctx context.Context, iModelName string) {
	n.log(ctx).WithField("imodel_name", iModelName).Warn("Extraction failed")
}

func (n *LogNotifier) log(ctx context.Context) *logger.Logger {
	if logger.HasLogger(ctx) || n.Logger == nil {
		return logger.FromContext(ctx)
	}
	return n.Logger
}

// ErrorReporter surfaces API errors to the user.
type ErrorReporter interface {
	ReportError(ctx context.Context, err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(ctx context.Context, err error)

func (f ErrorReporterFunc) ReportError(ctx context.Context, err error) {
	f(ctx, err)
}

// LogErrorReporter logs a status-code keyed message for each error.
type LogErrorReporter struct {
	Logger *logger.Logger
}

func (r *LogErrorReporter) ReportError(ctx context.Context, err error) {
	log := r.Logger
	if logger.HasLogger(ctx) || log == nil {
		log = logger.FromContext(ctx)
	}

	code := client.StatusCode(err)
	log.WithError(err).WithField(logger.FieldStatus, code).Error(StatusMessage(code))
}

// StatusMessage returns the user-facing message for an HTTP status code.
// Zero means the request never produced a response.
func StatusMessage(code int) string {
	switch {
	case code == http.StatusUnauthorized:
		return "You are not authorized to perform this action."
	case code == http.StatusForbidden:
		return "You do not have the required permissions."
	case code == http.StatusNotFound:
		return "The requested resource was not found."
	case code == http.StatusUnprocessableEntity:
		return "The request could not be processed."
	case code == http.StatusTooManyRequests:
		return "Too many requests. Please try again later."
	case code >= 500:
		return "The service is unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}
