package pactfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"

	"github.com/form3tech-oss/pact-mock/internal/app/pact"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

var prettyOptions = &pretty.Options{Width: 80, Prefix: "", Indent: "  ", SortKeys: true}

// FileName is the name a pact between consumer and provider is written under.
func FileName(consumer, provider string) string {
	return fmt.Sprintf("%s-%s.json", consumer, provider)
}

// Writer serialises pact file writes made through it.
type Writer struct {
	mu sync.Mutex
}

// Write stores the document in dir. Unless overwrite is set, interactions of an
// existing file are kept: entries with the same description and provider states
// are replaced, the others preserved, and new ones appended. The file is
// replaced atomically.
func (w *Writer) Write(doc *pact.Document, dir string, overwrite bool) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", pacterror.IO(err, "creating pact directory %s", dir)
	}
	path := filepath.Join(dir, FileName(doc.Consumer(), doc.Provider()))

	data, err := json.Marshal(doc)
	if err != nil {
		return "", pacterror.IO(err, "encoding pact")
	}

	if !overwrite {
		existing, err := os.ReadFile(path)
		switch {
		case err == nil:
			data, err = merge(existing, data, doc)
			if err != nil {
				return "", err
			}
		case !os.IsNotExist(err):
			return "", pacterror.IO(err, "reading existing pact file %s", path)
		}
	}

	if err := writeAtomic(path, pretty.PrettyOptions(data, prettyOptions)); err != nil {
		return "", err
	}
	log.WithField("path", path).Info("pact file written")
	return path, nil
}

func merge(existing, current []byte, doc *pact.Document) ([]byte, error) {
	if !gjson.ValidBytes(existing) {
		return nil, pacterror.IO(nil, "existing pact file is not valid JSON")
	}
	existingVersion := gjson.GetBytes(existing, "metadata.pactSpecification.version").String()
	if existingVersion == doc.SpecificationVersion().String() {
		return mergeRaw(existing, current)
	}

	log.WithFields(log.Fields{
		"existing": existingVersion,
		"current":  doc.SpecificationVersion().String(),
	}).Info("pact specification versions differ, converting existing interactions")

	previous, err := pact.UnmarshalDocument(existing)
	if err != nil {
		return nil, pacterror.IO(err, "reading existing pact file")
	}
	merged, err := pact.New(doc.Consumer(), doc.Provider(), doc.SpecificationVersion())
	if err != nil {
		return nil, err
	}
	for _, i := range previous.Interactions() {
		merged.AddInteraction(i)
	}
	for _, i := range doc.Interactions() {
		merged.AddInteraction(i)
	}
	return json.Marshal(merged)
}

// mergeRaw keeps existing interactions byte for byte.
func mergeRaw(existing, current []byte) ([]byte, error) {
	var order []string
	interactions := map[string]string{}
	add := func(r gjson.Result) bool {
		key := mergeKey(r)
		if _, seen := interactions[key]; !seen {
			order = append(order, key)
		}
		interactions[key] = r.Raw
		return true
	}
	gjson.GetBytes(existing, "interactions").ForEach(func(_, r gjson.Result) bool { return add(r) })
	gjson.GetBytes(current, "interactions").ForEach(func(_, r gjson.Result) bool { return add(r) })

	out, err := sjson.SetRawBytes(current, "interactions", []byte("[]"))
	if err != nil {
		return nil, pacterror.IO(err, "merging pact interactions")
	}
	for _, key := range order {
		out, err = sjson.SetRawBytes(out, "interactions.-1", []byte(interactions[key]))
		if err != nil {
			return nil, pacterror.IO(err, "merging pact interactions")
		}
	}
	return out, nil
}

// mergeKey is the description plus the normalised provider states. V2
// `providerState` strings are treated as a single state without params.
func mergeKey(r gjson.Result) string {
	states := "null"
	if s := r.Get("providerStates"); s.IsArray() && len(s.Array()) > 0 {
		var v interface{}
		if err := json.Unmarshal([]byte(s.Raw), &v); err == nil {
			if b, err := json.Marshal(v); err == nil {
				states = string(b)
			}
		}
	} else if s := r.Get("providerState"); s.String() != "" {
		b, _ := json.Marshal([]map[string]string{{"name": s.String()}})
		states = string(b)
	}
	return r.Get("description").String() + "\x00" + states
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return pacterror.IO(err, "creating temporary pact file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pacterror.IO(err, "writing pact file %s", path)
	}
	if err := tmp.Close(); err != nil {
		return pacterror.IO(err, "writing pact file %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return pacterror.IO(err, "replacing pact file %s", path)
	}
	return nil
}

// Load reads a pact file. Files ending in .yaml or .yml are read as YAML with
// the same structure as the JSON format.
func Load(path string) (*pact.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pacterror.IO(err, "reading pact file %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var v interface{}
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, pacterror.MalformedBody(err, "pact file %s is not valid YAML", path)
		}
		if data, err = json.Marshal(v); err != nil {
			return nil, pacterror.MalformedBody(err, "pact file %s cannot be represented as JSON", path)
		}
	}
	return pact.UnmarshalDocument(data)
}
