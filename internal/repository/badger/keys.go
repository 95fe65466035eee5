package badger

import (
	"bytes"

	"github.com/feichai0017/document-intelligence/internal/models"
)

const (
	documentPrefix    = "doc:"
	docOwnerPrefix    = "docown:"
	docStatusPrefix   = "docsta:"
	sharePrefix       = "shr:"
	shareGranteePref  = "shrgnt:"
	shareDocumentPref = "shrdoc:"
	jobPrefix         = "job:"
	jobDocumentPrefix = "jobdoc:"
)

func documentKey(id string) []byte { return []byte(documentPrefix + id) }

func ownerIndexKey(owner, id string) []byte {
	return []byte(docOwnerPrefix + owner + ":" + id)
}

func ownerIndexPrefix(owner string) []byte { return []byte(docOwnerPrefix + owner + ":") }

func statusIndexKey(status models.Status, id string) []byte {
	return []byte(docStatusPrefix + string(status) + ":" + id)
}

func statusIndexPrefix(status models.Status) []byte {
	return []byte(docStatusPrefix + string(status) + ":")
}

func shareKey(id string) []byte { return []byte(sharePrefix + id) }

func granteeIndexKey(grantee, id string) []byte {
	return []byte(shareGranteePref + grantee + ":" + id)
}

func granteeIndexPrefix(grantee string) []byte { return []byte(shareGranteePref + grantee + ":") }

func shareDocIndexKey(docID, id string) []byte {
	return []byte(shareDocumentPref + docID + ":" + id)
}

func shareDocIndexPrefix(docID string) []byte { return []byte(shareDocumentPref + docID + ":") }

func jobKey(id string) []byte { return []byte(jobPrefix + id) }

func jobDocIndexKey(docID, id string) []byte {
	return []byte(jobDocumentPrefix + docID + ":" + id)
}

func jobDocIndexPrefix(docID string) []byte { return []byte(jobDocumentPrefix + docID + ":") }

// idFromIndexKey returns the record id after the prefix of an index key.
func idFromIndexKey(key, prefix []byte) string {
	return string(bytes.TrimPrefix(key, prefix))
}
