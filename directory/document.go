package directory

// DocVerificationMethod is one verificationMethod entry of a resolved DID
// document.
type DocVerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// DocService is one service entry of a resolved DID document.
type DocService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Document is the subset of a W3C DID document a did:plc directory returns
// from resolve_did, with the fields this system reads (spec.md §4.6/§4.7).
type Document struct {
	ID                 string                  `json:"id"`
	AlsoKnownAs        []string                `json:"alsoKnownAs"`
	VerificationMethod []DocVerificationMethod `json:"verificationMethod"`
	Service            []DocService            `json:"service"`
}

// LastOperation is the shape returned by get_last_operation: the head CID
// of a DID's log plus the operation JSON that produced it. Unlike the
// public DID document, this carries rotationKeys directly — the manager
// reconstructs rotation keys from here, not from Document, since
// rotation keys are never exposed as verificationMethod entries.
type LastOperation struct {
	CID       string         `json:"cid"`
	Operation map[string]any `json:"operation"`
}
