package backend

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/mohammed-shakir/pgstac-api/internal/stacerr"
)

// translate maps driver errors onto the API error taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pe *pq.Error
	if errors.As(err, &pe) {
		code := string(pe.Code)
		switch {
		case code == "23505":
			return stacerr.Wrap(stacerr.Conflict, err, pe.Message)
		case code == "P0002":
			return stacerr.Wrap(stacerr.NotFound, err, pe.Message)
		case code == "23503":
			return stacerr.Wrap(stacerr.ForeignKey, err, pe.Message)
		case code == "23502":
			return stacerr.Wrap(stacerr.Database, err, pe.Message)
		case code == "22007" || code == "22008":
			return stacerr.Wrap(stacerr.Validation, err, pe.Message)
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P"):
			return stacerr.Wrap(stacerr.Unavailable, err, "")
		case strings.HasPrefix(code, "23"), code == "P0001":
			return stacerr.Wrap(stacerr.Database, err, pe.Message)
		}
		return stacerr.Wrap(stacerr.Internal, err, "")
	}

	var ne net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &ne) {
		return stacerr.Wrap(stacerr.Unavailable, err, "")
	}
	if strings.Contains(err.Error(), "database is closed") {
		return stacerr.Wrap(stacerr.Unavailable, err, "")
	}
	return stacerr.Wrap(stacerr.Internal, err, "")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return strings.ToLower(string(stacerr.KindOf(err)))
	}
}
