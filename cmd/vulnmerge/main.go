// Package main provides the entry point for the vulnmerge CLI.
//
// vulnmerge normalizes the exports of host, web, vulnerability-management
// and port scanners into one record shape, merges duplicate findings and
// writes a workbook of everything at or above a chosen risk level.
//
// Usage:
//
//	vulnmerge merge --host rsas.xlsx --web awvs.html --port scan.xml
//	vulnmerge compare
//
// See --help for all available options.
package main

// main is the entry point for vulnmerge.
func main() {
	Execute()
}
