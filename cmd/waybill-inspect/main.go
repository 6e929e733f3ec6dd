// Command waybill-inspect lists the fillable fields of a waybill
// template, so administrators can check a freshly uploaded form against
// the field names the generator produces.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/taxidocs/waybill-server/internal/shift"
	"github.com/taxidocs/waybill-server/internal/templates"
)

var (
	outputFormat = flag.String("format", "text", "Output format: text, json")
	checkFill    = flag.Bool("check", false, "Check which generated values would match the template's fields")
	help         = flag.Bool("help", false, "Show help message")
)

func main() {
	flag.Parse()

	if *help {
		printHelp()
		return
	}

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: template file path required\n\n")
		printUsage()
		os.Exit(1)
	}

	path, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: File not found: %s\n", path)
		os.Exit(1)
	}

	insp, err := templates.Inspect(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error inspecting template: %v\n", err)
		os.Exit(1)
	}

	if err := outputResults(insp); err != nil {
		fmt.Fprintf(os.Stderr, "Error outputting results: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Waybill Inspect - list the fillable fields of a waybill template")
	fmt.Println()
	fmt.Println("Templates are matched against generated values by field name, so a")
	fmt.Println("template whose fields are misnamed produces a mostly empty waybill.")
	fmt.Println("Run this after uploading a new template to catch that early.")
	fmt.Println()
	printUsage()
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -format    Output format: text (default), json")
	fmt.Println("  -check     Report which generated value keys would match the fields")
	fmt.Println("  -help      Show this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  waybill-inspect templates/driver_12345.pdf")
	fmt.Println("  waybill-inspect -format json templates/driver_12345.pdf")
	fmt.Println("  waybill-inspect -check templates/driver_12345.pdf")
}

func printUsage() {
	fmt.Println("USAGE:")
	fmt.Println("  waybill-inspect [OPTIONS] <template.pdf>")
}

func outputResults(insp *templates.Inspection) error {
	switch *outputFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(insp)
	case "text":
		outputText(insp)
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s", *outputFormat)
	}
}

func outputText(insp *templates.Inspection) {
	fmt.Printf("Template: %s\n", insp.Path)
	fmt.Printf("Pages: %d\n", insp.PageCount)
	fmt.Printf("Size: %d bytes\n", insp.SizeBytes)
	fmt.Printf("Fillable fields: %d\n", len(insp.Fields))
	fmt.Println()

	for i, field := range insp.Fields {
		fmt.Printf("[%d] %s\n", i+1, field.Name)
		if field.Normalized != field.Name {
			fmt.Printf("    Matches as: %s\n", field.Normalized)
		}
		if field.Page > 0 {
			fmt.Printf("    Page: %d\n", field.Page)
		}
	}

	if *checkFill {
		fmt.Println()
		printFillCheck(insp)
	}
}

// printFillCheck derives a sample value set and reports which keys find a
// home in the template.
func printFillCheck(insp *templates.Inspection) {
	values, err := shift.Derive("08:00", time.Now())
	if err != nil {
		fmt.Printf("fill check unavailable: %v\n", err)
		return
	}
	values["odometr"] = "0"
	values["serial_number"] = shift.NewSerialNumber()

	known := make(map[string]bool, len(insp.Fields))
	for _, field := range insp.Fields {
		known[field.Normalized] = true
	}

	fmt.Println("FILL CHECK (generated value keys vs. template fields):")
	for _, key := range sortedValueKeys(values) {
		status := "no matching field"
		if known[key] {
			status = "ok"
		}
		fmt.Printf("  %-16s %s\n", key, status)
	}
}

func sortedValueKeys(values shift.FieldValues) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
