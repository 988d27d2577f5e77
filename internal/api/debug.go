package api

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"text/tabwriter"

	"tailscale.com/tsweb"

	"github.com/banshee-data/psn.report/internal/version"
)

// AttachDebugRoutes mounts the PSN pages under /debug/ on mux. tsweb limits
// /debug/ to loopback and tailnet clients.
func (s *Server) AttachDebugRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KV("Version", version.String())
	debug.KVFunc("PSN session", func() any { return s.session.ID().String() })
	debug.KVFunc("PSN trackers", func() any { return s.session.Store().Len() })

	debug.HandleFunc("psn", "PSN session summary and tracker table", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.writeSummary(w)
	})
	debug.HandleSilentFunc("psn.json", func(w http.ResponseWriter, r *http.Request) {
		s.showStatus(w, r)
	})
}

func (s *Server) writeSummary(w io.Writer) {
	st := s.status()
	fmt.Fprintf(w, "session   %s\n", st.SessionID)
	fmt.Fprintf(w, "system    %s\n", st.SystemName)
	fmt.Fprintf(w, "state     %s\n", st.State)
	fmt.Fprintf(w, "packets   info=%d data=%d bytes=%d\n", st.InfoPackets, st.DataPackets, st.Bytes)

	kinds := make([]string, 0, len(st.Failures))
	for k := range st.Failures {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	fmt.Fprint(w, "failures ")
	if len(kinds) == 0 {
		fmt.Fprint(w, " none")
	}
	for _, k := range kinds {
		fmt.Fprintf(w, " %s=%d", k, st.Failures[k])
	}
	fmt.Fprintf(w, "\ntrackers  %d\n\n", st.Trackers)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPOSITION\tVALID\tUPDATED")
	for id, rec := range s.session.Store().All() {
		pos := "-"
		if p, ok := rec.Position.Get(); ok {
			pos = fmt.Sprintf("%.3f,%.3f,%.3f", p.X, p.Y, p.Z)
		}
		valid := "-"
		if v, ok := rec.Validity.Get(); ok {
			valid = fmt.Sprint(v)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", id, rec.DisplayName(), pos, valid, rec.LastUpdated.Format("15:04:05.000"))
	}
	tw.Flush()
}
