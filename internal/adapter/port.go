package adapter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	nmap "github.com/lair-framework/go-nmap"

	"github.com/nao1215/vulnmerge/internal/config"
	"github.com/nao1215/vulnmerge/internal/model"
	"github.com/nao1215/vulnmerge/internal/normalize"
	"github.com/nao1215/vulnmerge/internal/textenc"
)

// Raw headers of rows produced from nmap XML. They are chosen so that the
// default port column table binds them exactly.
const (
	nmapHeaderIP       = "IP"
	nmapHeaderPort     = "Port"
	nmapHeaderProtocol = "Protocol"
	nmapHeaderState    = "State"
	nmapHeaderService  = "Service"
	nmapHeaderProduct  = "Product"
)

var nmapHeaders = []string{
	nmapHeaderIP, nmapHeaderPort, nmapHeaderProtocol,
	nmapHeaderState, nmapHeaderService, nmapHeaderProduct,
}

// PortAdapter reads port scans: nmap XML, or a port list spreadsheet.
type PortAdapter struct {
	resolver *textenc.Resolver
	danger   config.DangerPolicy
}

// NewPortAdapter returns a port-scanner adapter.
func NewPortAdapter(resolver *textenc.Resolver, danger config.DangerPolicy) *PortAdapter {
	return &PortAdapter{resolver: resolver, danger: danger}
}

// Family returns model.FamilyPort.
func (a *PortAdapter) Family() model.Family {
	return model.FamilyPort
}

// Parse reads nmap XML or a tabular port list. Every row of a document
// carries the same RunID; for nmap XML it includes the scan start time.
func (a *PortAdapter) Parse(ctx context.Context, doc Document) (*Parsed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if doc.Ext() == ".xml" {
		return a.parseNmap(doc)
	}

	p, err := readTabular(doc, a.Family(), a.resolver, htmlGrid)
	if err != nil {
		return nil, err
	}
	for i := range p.Tables {
		for j := range p.Tables[i].Rows {
			p.Tables[i].Rows[j].RunID = doc.Path
		}
	}
	return p, nil
}

func (a *PortAdapter) parseNmap(doc Document) (*Parsed, error) {
	text, enc, err := a.resolver.Resolve(doc.Data)
	if err != nil {
		return nil, err
	}
	run, err := nmap.Parse([]byte(text))
	if err != nil {
		return nil, &ParseError{File: doc.Path, Err: fmt.Errorf("parse nmap xml: %w", err)}
	}

	start := time.Time(run.Start)
	runID := doc.Path
	if !start.IsZero() {
		runID = doc.Path + "@" + start.UTC().Format(time.RFC3339)
	}

	t := Table{Name: "nmap", Headers: nmapHeaders}
	row := 0
	for _, host := range run.Hosts {
		ip := hostAddress(host)
		ts := time.Time(host.StartTime)
		if ts.IsZero() {
			ts = start
		}
		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			row++
			rec := model.RawRecord{
				Fields: map[string]string{
					nmapHeaderIP:       ip,
					nmapHeaderPort:     strconv.Itoa(port.PortId),
					nmapHeaderProtocol: port.Protocol,
					nmapHeaderState:    port.State.State,
					nmapHeaderService:  port.Service.Name,
					nmapHeaderProduct:  strings.TrimSpace(port.Service.Product + " " + port.Service.Version),
				},
				OriginFile: doc.Path,
				Family:     model.FamilyPort,
				Row:        row,
				RunID:      runID,
			}
			if !ts.IsZero() {
				stamp := ts.UTC()
				rec.Timestamp = &stamp
			}
			t.Rows = append(t.Rows, rec)
		}
	}
	return &Parsed{Encoding: enc, Tables: []Table{t}}, nil
}

// hostAddress prefers an IPv4, then an IPv6 address, then whatever comes first.
func hostAddress(h nmap.Host) string {
	for _, want := range []string{"ipv4", "ipv6"} {
		for _, addr := range h.Addresses {
			if addr.AddrType == want {
				return addr.Addr
			}
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}

// Refine names the finding after the endpoint, drops ports that are not
// open and applies the dangerous port policy.
func (a *PortAdapter) Refine(row *model.MappedRow) ([]model.Warning, error) {
	state := strings.ToLower(row.Get(model.FieldState))
	if state != "" && !strings.HasPrefix(state, "open") && state != "开放" {
		return nil, ErrRowFiltered
	}

	port, proto, err := normalize.ParsePort(row.Get(model.FieldPort))
	if err != nil {
		return nil, err
	}
	if p := model.ParseProtocol(row.Get(model.FieldProtocol)); p != model.ProtocolUnspecified {
		proto = p
	}
	// A port list row without a protocol is a TCP port, so it names and keys
	// the same way as the nmap record of that endpoint.
	if port != nil && proto == model.ProtocolUnspecified {
		proto = model.ProtocolTCP
		row.Set(model.FieldProtocol, proto.String())
	}

	if row.Get(model.FieldName) == "" && port != nil {
		row.Set(model.FieldName, "Open port "+strconv.Itoa(*port)+"/"+proto.String())
	}

	service := row.Get(model.FieldService)
	if service != "" {
		row.Extra = append(row.Extra, "service="+service)
	}
	if state != "" {
		row.Extra = append(row.Extra, "state="+state)
	}
	if product := row.Passthrough[nmapHeaderProduct]; product != "" {
		row.Extra = append(row.Extra, "product="+product)
	}
	if row.Get(model.FieldDescription) == "" {
		if remark := row.Get(model.FieldRemark); remark != "" {
			row.Set(model.FieldDescription, remark)
		}
	}

	if row.Get(model.FieldRisk) == "" {
		if a.Dangerous(port, service) {
			row.Set(model.FieldRisk, "medium")
			if row.Get(model.FieldRemediation) == "" {
				row.Set(model.FieldRemediation, a.danger.Remediation)
			}
		} else {
			row.Set(model.FieldRisk, "info")
		}
	}
	return nil, nil
}

// Dangerous reports whether an open port or its service is on the
// dangerous list.
func (a *PortAdapter) Dangerous(port *int, service string) bool {
	if port != nil && a.danger.Ports[*port] {
		return true
	}
	service = strings.ToLower(service)
	if service == "" {
		return false
	}
	for _, s := range a.danger.Services {
		if strings.Contains(service, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// Frequency counts, per (ip, port), the distinct scan runs that reported the
// port open. The result is sorted by ip, then port.
func Frequency(records []model.Record) []model.PortRuns {
	type endpoint struct {
		ip   string
		port int
	}
	runs := make(map[endpoint]*model.StringSet)
	for _, r := range records {
		if r.Family != model.FamilyPort || r.IP == nil || r.Port == nil {
			continue
		}
		k := endpoint{ip: *r.IP, port: *r.Port}
		set, ok := runs[k]
		if !ok {
			set = &model.StringSet{}
			runs[k] = set
		}
		for _, id := range r.ScanRuns.Sorted() {
			set.Add(id)
		}
	}

	out := make([]model.PortRuns, 0, len(runs))
	for k, set := range runs {
		out = append(out, model.PortRuns{IP: k.ip, Port: k.port, Runs: set.Len()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IP != out[j].IP {
			return out[i].IP < out[j].IP
		}
		return out[i].Port < out[j].Port
	})
	return out
}
