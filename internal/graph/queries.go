package graph

import (
	"fmt"
	"strings"
)

// DefaultGraphURIPrefix is the namespace under which each device's
// structure graph is loaded.
const DefaultGraphURIPrefix = "http://ficlit.unibo.it/ArchivioEvangelisti/structure"

// DefaultEndpoints are probed in order when none are configured.
var DefaultEndpoints = []string{
	"http://localhost:9999/blazegraph/namespace/kb/sparql",
	"http://127.0.0.1:9999/blazegraph/namespace/kb/sparql",
}

// GraphURI returns the named graph holding one device's structure.
func GraphURI(prefix, rootID string) string {
	return strings.TrimRight(prefix, "/") + "/" + rootID
}

const prefixes = `PREFIX rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX rico: <https://www.ica.org/standards/RiC/ontology#>
PREFIX prov: <http://www.w3.org/ns/prov#>
PREFIX bodi: <http://w3id.org/bodi#>
`

// healthQuery counts triples across every named graph; on quad stores the
// default graph is not the union of the named ones.
const healthQuery = `SELECT (COUNT(*) AS ?count) WHERE { GRAPH ?g { ?s ?p ?o } }`

const graphCountQuery = `SELECT (COUNT(*) AS ?count) WHERE { GRAPH <%s> { ?s ?p ?o } }`

// Records are optional so that empty recordsets still appear.
const recordsQuery = prefixes + `
SELECT DISTINCT ?recordset_path ?record_path ?record
WHERE {
  GRAPH <%s> {
    ?recordset rdf:type rico:RecordSet .
    ?recordset rico:hasOrHadInstantiation ?rs_inst .
    ?rs_inst prov:atLocation ?rs_loc .
    ?rs_loc rdfs:label ?recordset_path .
    OPTIONAL {
      ?record rico:isOrWasIncludedIn ?recordset .
      ?record rdf:type rico:Record .
      ?record rico:hasOrHadInstantiation ?inst .
      ?inst prov:atLocation ?loc .
      ?loc rdfs:label ?record_path .
    }
  }
}
ORDER BY ?recordset_path ?record_path`

const hashesQuery = prefixes + `
SELECT DISTINCT ?path ?hash
WHERE {
  GRAPH <%s> {
    ?inst prov:atLocation ?loc .
    ?loc rdfs:label ?path .
    ?inst bodi:hasHashCode ?fixity .
    ?fixity rdf:value ?hash .
    FILTER(?path != "")
  }
}`

// graphQuery fills a query template with an IRI after checking it cannot
// break out of the angle brackets.
func graphQuery(tmpl, graphURI string) (string, error) {
	if graphURI == "" || strings.ContainsAny(graphURI, "<>\"{}|^`\\ \t\r\n") {
		return "", fmt.Errorf("invalid graph IRI %q", graphURI)
	}
	return fmt.Sprintf(tmpl, graphURI), nil
}
