// Package seed reads the puzzle file the authority's nodes are created from.
//
// The file is YAML:
//
//	nodes:
//	  - team: ALPHA
//	    node: SYS-01
//	    access_key: K1
//	    cipher: |
//	      XYZZY
//	    cipher_type: CAESAR
//	    keyword: lock
//	    form_link: https://forms.example/alpha
//	    hints:
//	      - ["[HINT 1] shift by 3"]
package seed

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atinyakov/twinlock/internal/models"
	"gopkg.in/yaml.v3"
)

type file struct {
	Nodes []models.Node `yaml:"nodes"`
}

// Load reads and validates the puzzle file at path.
func Load(path string) ([]models.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open puzzles: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads and validates a puzzle file. Every node needs a team, a node
// id, an access key and a keyword, and a team/node pair may appear once.
func Decode(r io.Reader) ([]models.Node, error) {
	var doc file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse puzzles: %w", err)
	}

	seen := make(map[string]bool, len(doc.Nodes))
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		n.TeamID = strings.ToUpper(strings.TrimSpace(n.TeamID))
		n.NodeID = strings.ToUpper(strings.TrimSpace(n.NodeID))
		n.CipherText = strings.TrimRight(n.CipherText, "\n")
		switch {
		case n.TeamID == "" || n.NodeID == "":
			return nil, fmt.Errorf("node %d: team and node are required", i+1)
		case n.AccessKey == "":
			return nil, fmt.Errorf("node %s/%s: access_key is required", n.TeamID, n.NodeID)
		case strings.TrimSpace(n.Keyword) == "":
			return nil, fmt.Errorf("node %s/%s: keyword is required", n.TeamID, n.NodeID)
		}
		key := n.TeamID + "/" + n.NodeID
		if seen[key] {
			return nil, fmt.Errorf("node %s: duplicate entry", key)
		}
		seen[key] = true
	}
	return doc.Nodes, nil
}
