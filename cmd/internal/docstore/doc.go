// Package docstore is the document-store boundary: named collections of schemaless documents
// addressed by opaque store-assigned ids, with equality/not-equal/null filters, single-field
// ordering and limit/offset paging.
//
// There are no multi-document transactions. Callers that need more than one write accept that a
// failure between writes leaves the earlier writes in place.
package docstore
