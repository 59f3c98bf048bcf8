package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/tripfx/tripfx/internal/core/recommend"
	errwrap "github.com/tripfx/tripfx/internal/errors"
)

// ExitWithCode logs err with the foundry exit code metadata and exits.
// A nil logger falls back to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		writeFatal(os.Stderr, msg, err)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		writeFatal(os.Stderr, msg, err)
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_description", info.Description),
		zap.String("exit_category", info.Category),
	}
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("error_message", envelope.Message),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original, ok := envelope.Original.(error); ok {
			err = original
		}
	}
	fields = append(fields, zap.Error(err))
	logger.Error(msg, fields...)

	os.Exit(info.Code)
}

// ExitWithCodeStderr is ExitWithCode for failures before the logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	ExitWithCode(nil, exitCode, msg, err)
}

// ExitCodeFor maps a command error to a semantic exit code. Scripts can
// tell "providers are down" apart from bad input or a broken config.
func ExitCodeFor(err error) foundry.ExitCode {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope.Code == errwrap.CodeConfigInvalid {
		return foundry.ExitConfigInvalid
	}
	if recommend.CodeOf(err) == recommend.CodeProvidersExhausted {
		return foundry.ExitExternalServiceUnavailable
	}
	return foundry.ExitFailure
}

func writeFatal(w io.Writer, msg string, err error) {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		fmt.Fprintf(w, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope):
		fmt.Fprintf(w, "FATAL: %s [%s]: %s (correlation: %s)\n", msg, envelope.Code, envelope.Message, envelope.CorrelationID)
		if original, ok := envelope.Original.(error); ok {
			fmt.Fprintf(w, "Underlying error: %v\n", original)
		}
	default:
		fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}
}
