package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/batch-reconciler/internal/ledger"
)

// DecodeBatchCursor parses the opaque next_cursor of the previous page
func DecodeBatchCursor(cursorStr string) (*ledger.BatchCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &ledger.BatchCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		BatchID:   parts[1],
	}, nil
}

func EncodeBatchCursor(cursor *ledger.BatchCursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.BatchID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
