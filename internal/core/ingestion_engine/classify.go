package ingestion_engine

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markdave123-py/docflow/internal/core"
)

// httpStatusError matches AWS SDK response errors.
type httpStatusError interface {
	HTTPStatusCode() int
}

// httpCodeError matches Google API call errors (gax apierror).
type httpCodeError interface {
	HTTPCode() int
}

type grpcStatusError interface {
	GRPCStatus() *status.Status
}

// Classify decides whether a failure is worth retrying. Only network, timeout
// and 429/5xx-class failures are transient; everything unknown is unrecoverable.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	var unrecoverable *core.UnrecoverableError
	if errors.As(err, &unrecoverable) {
		return OutcomeUnrecoverable
	}
	var transient *core.TransientError
	if errors.As(err, &transient) {
		return OutcomeTransient
	}

	switch {
	case errors.Is(err, context.Canceled):
		return OutcomeUnrecoverable
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, driver.ErrBadConn):
		return OutcomeTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 08 connection exception, 40 transaction rollback, 53 insufficient resources, 57P01 admin shutdown
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "40") ||
			strings.HasPrefix(pgErr.Code, "53") || pgErr.Code == "57P01" {
			return OutcomeTransient
		}
		return OutcomeUnrecoverable
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return OutcomeTransient
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyStatus(gErr.Code)
	}
	var codeErr httpCodeError
	if errors.As(err, &codeErr) && codeErr.HTTPCode() > 0 {
		return classifyStatus(codeErr.HTTPCode())
	}
	var grpcErr grpcStatusError
	if errors.As(err, &grpcErr) {
		switch grpcErr.GRPCStatus().Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
			return OutcomeTransient
		}
		return OutcomeUnrecoverable
	}
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(statusErr.HTTPStatusCode())
	}

	return OutcomeUnrecoverable
}

func classifyStatus(code int) Outcome {
	if code == 429 || code >= 500 {
		return OutcomeTransient
	}
	return OutcomeUnrecoverable
}
