package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirSearcher reads notification mails dropped as files into a
// directory, one message per file. The file name is the stable
// message id, so re-reading the same drop folder stays idempotent.
// It stands in for a live mailbox when no mail API is configured.
type DirSearcher struct {
	Dir string
}

// Search implements MailSearcher. A non-empty query keeps only
// messages containing it. A missing directory yields no messages.
func (d DirSearcher) Search(_ context.Context, query string) ([]Message, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading mail dir: %w", err)
	}

	var messages []Message
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading mail %s: %w", entry.Name(), err)
		}
		body := string(data)
		if query != "" && !strings.Contains(body, query) {
			continue
		}
		messages = append(messages, Message{ID: entry.Name(), Body: body})
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })
	return messages, nil
}
