package source

// ListingKind tags the result of reading a listing page.
type ListingKind int

const (
	KindValues ListingKind = iota // a page of links
	KindSingle                    // the listing URL resolved to a single advert
	KindError                     // the page could not be read
)

func (k ListingKind) String() string {
	switch k {
	case KindValues:
		return "values"
	case KindSingle:
		return "single"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Listing is the outcome of one listing page.
type Listing struct {
	Kind  ListingKind
	Links []LinkRef
	Link  LinkRef
	Err   error
}

// Values wraps the links of a listing page.
func Values(links ...LinkRef) Listing { return Listing{Kind: KindValues, Links: links} }

// Single wraps a listing URL that landed directly on an advert.
func Single(link LinkRef) Listing { return Listing{Kind: KindSingle, Link: link} }

// Failed wraps a listing page error.
func Failed(err error) Listing { return Listing{Kind: KindError, Err: err} }

// Refs flattens the listing to the links it carries.
func (l Listing) Refs() []LinkRef {
	switch l.Kind {
	case KindValues:
		return l.Links
	case KindSingle:
		return []LinkRef{l.Link}
	default:
		return nil
	}
}
