// Package adapter reads scanner exports into raw tables.
//
// Each scanner family has one Adapter. Parse extracts header rows and data
// rows from a document without interpreting them; the column mapper decides
// what the headers mean. After mapping, Refine gives the adapter a chance to
// apply format knowledge that only makes sense once fields are known, such as
// the AWVS numeric severity codes, the Nessus plugin reference table or the
// dangerous port policy of port scans.
//
// Supported containers:
//   - xlsx workbooks (first sheet), read with excelize
//   - csv and tsv text, decoded through the textenc ladder
//   - html reports, with header-row tables or key/value tables
//   - nmap XML, port scanner family only
package adapter
