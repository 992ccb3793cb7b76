package logctx

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestFromContextFallsBack(t *testing.T) {
	// Nil and bare contexts both yield a usable logger.
	logger := FromContext(nil)
	logger.Info().Msg("nil context")

	logger = FromContext(context.Background())
	logger.Info().Msg("bare context")
}

func TestWithLoggerRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	custom := zerolog.New(&buf).With().Str("database_id", "db1").Logger()

	ctx := WithLogger(context.Background(), custom)
	logger := FromContext(ctx)
	logger.Info().Msg("hello")

	if !bytes.Contains(buf.Bytes(), []byte(`"database_id":"db1"`)) {
		t.Errorf("logger field missing, got: %s", buf.String())
	}
}

func TestWithStr(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))
	ctx = WithStr(ctx, "phase", "ingest")

	logger := FromContext(ctx)
	logger.Info().Msg("hello")

	if !bytes.Contains(buf.Bytes(), []byte(`"phase":"ingest"`)) {
		t.Errorf("expected phase field, got: %s", buf.String())
	}
}
