package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
)

// exportPageSize bounds each timeline read while streaming the export.
const exportPageSize = 500

// ExportCSV streams the filtered timeline as CSV, most recent first.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, filters TimelineFilters) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("audit: service not configured")
	}
	cw := csv.NewWriter(w)
	header := []string{"occurred_at", "actor", "action", "entity_type", "entity_id", "entity_name", "field", "old_value", "new_value", "metadata"}
	if err := cw.Write(header); err != nil {
		return err
	}
	offset := 0
	for {
		rows, err := s.store.Timeline(ctx, filters, exportPageSize, offset)
		if err != nil {
			return err
		}
		for _, e := range rows {
			meta := ""
			if len(e.Metadata) > 0 {
				raw, err := json.Marshal(e.Metadata)
				if err == nil {
					meta = string(raw)
				}
			}
			record := []string{
				e.OccurredAt.Format("2006-01-02 15:04:05"),
				e.ActorName,
				e.Action,
				e.EntityType,
				e.EntityID,
				e.EntityName,
				e.Field,
				e.OldValue,
				e.NewValue,
				meta,
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		if len(rows) < exportPageSize {
			break
		}
		offset += exportPageSize
	}
	cw.Flush()
	return cw.Error()
}
