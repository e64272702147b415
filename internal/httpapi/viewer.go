package httpapi

import (
	_ "embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Ganesh7742/ShareTheCode/internal/snapshot"
)

//go:embed viewer.html
var viewerHTML string

//go:embed notfound.html
var notFoundHTML string

var (
	viewerTmpl   = template.Must(template.New("viewer").Parse(viewerHTML))
	notFoundTmpl = template.Must(template.New("notfound").Parse(notFoundHTML))
)

type viewerData struct {
	Name    string
	Creator string
	Created string
	Code    string
}

// viewSnapshot renders the human-viewable share page. html/template escapes
// every interpolated value, which is what keeps user-supplied code and names
// from being interpreted as markup.
func (s *Server) viewSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sn, err := s.hub.GetSnapshot(r.Context(), id)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			s.log.Error("view snapshot", "id", id, "error", err)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		notFoundTmpl.Execute(w, nil)
		return
	}
	s.renderViewer(w, sn)
}

func (s *Server) renderViewer(w http.ResponseWriter, sn snapshot.Snapshot) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := viewerData{
		Name:    sn.Name,
		Creator: sn.Creator,
		Created: sn.CreatedAt.UTC().Format("02 Jan 2006 15:04 MST"),
		Code:    sn.Code,
	}
	if err := viewerTmpl.Execute(w, data); err != nil {
		s.log.Error("render viewer", "id", sn.ID, "error", err)
	}
}
