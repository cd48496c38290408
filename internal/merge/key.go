package merge

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/normalize"
)

// Key identifies the group a record merges into. Host families use ip, port
// and name; the web family uses url and name. Values are folded and trimmed.
type Key struct {
	Family model.Family
	Addr   string
	Port   string
	Name   string
}

// KeyOf returns the group key of r.
func KeyOf(r *model.Record) Key {
	k := Key{
		Family: r.Family,
		Name:   normalize.FoldToken(r.VulnerabilityName),
	}
	if r.Family.URLKeyed() {
		if r.URL != nil {
			k.Addr = normalize.FoldToken(*r.URL)
		}
		return k
	}
	if r.IP != nil {
		k.Addr = normalize.FoldToken(*r.IP)
	}
	if r.Port != nil {
		k.Port = strconv.Itoa(*r.Port)
	}
	return k
}

// partition returns the value that splits an ambiguous group: the protocol
// for host families, the IP for the web family. Empty means unspecified.
func partition(r *model.Record) string {
	if r.Family.URLKeyed() {
		if r.IP == nil {
			return ""
		}
		return normalize.FoldToken(*r.IP)
	}
	return r.Protocol.String()
}

// Fingerprint returns a stable digest of the record identity: its group key
// plus the partition value. Records that Merge keeps apart have different
// fingerprints.
func Fingerprint(r *model.Record) string {
	k := KeyOf(r)
	parts := []string{string(k.Family), k.Addr, k.Port, k.Name, partition(r)}
	sum := sha3.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
