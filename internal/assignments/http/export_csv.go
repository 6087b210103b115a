package http

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/carepoint/carepoint/internal/assignments"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

var csvHeader = []string{"email", "role", "department", "status", "assigned_by", "assigned_at", "updated_by", "updated_at"}

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func writeAssignmentsCSV(w io.Writer, items []assignments.RoleAssignment) error {
	s := newCSVStreamer(w)
	if err := s.writeRow(csvHeader); err != nil {
		return err
	}
	for _, a := range items {
		row := []string{
			a.IdentityKey,
			string(a.Role),
			a.Department,
			string(a.Status),
			a.AssignedBy,
			formatCSVTime(a.AssignedAt),
			a.UpdatedBy,
			formatCSVTime(a.UpdatedAt),
		}
		if err := s.writeRow(row); err != nil {
			return err
		}
	}
	return s.Flush()
}

func formatCSVTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListAssignments(r.Context(), assignments.Filter{Query: r.URL.Query().Get("q")})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="role-assignments.csv"`)
	if err := writeAssignmentsCSV(w, items); err != nil {
		h.logger.Warn("export assignments csv", slog.Any("error", err))
	}
}
