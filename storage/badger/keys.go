package badger

import "fmt"

// Key prefixes for different data types
const (
	documentPrefix = "docrec"
	ledgerKey      = "ledger:registry"
)

// makeDocumentKey generates a key for a document by its derived ID.
func makeDocumentKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", documentPrefix, id))
}

// documentKeyPrefix is the iteration prefix for all document keys.
func documentKeyPrefix() []byte {
	return []byte(documentPrefix + ":")
}
