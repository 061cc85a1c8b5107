package server

import (
	"encoding/json"
	"net/http"
)

// infoDocument is the relay information document served for
// Accept: application/nostr+json requests on the websocket path.
type infoDocument struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	PubKey        string `json:"pubkey,omitempty"`
	Contact       string `json:"contact,omitempty"`
	SupportedNIPs []int  `json:"supported_nips"`
	Software      string `json:"software"`
	Version       string `json:"version"`
}

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	doc := infoDocument{
		Name:        s.cfg.Name,
		Description: s.cfg.Description,
		PubKey:      s.cfg.PubKey,
		Contact:     s.cfg.Contact,
		// 1: basic protocol flow, 11: this document, 40: expiration tags,
		// 42: authentication.
		SupportedNIPs: []int{1, 11, 40, 42},
		Software:      "https://github.com/roach88/murmur",
		Version:       Version,
	}

	w.Header().Set("Content-Type", "application/nostr+json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(doc)
}
