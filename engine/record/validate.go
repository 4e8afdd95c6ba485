package record

// Validate is the gate applied before a record reaches any sink. It checks
// identity first, then the required fields in a fixed order so the reported
// field is deterministic.
func Validate(r Record) error {
	if r.ID == "" {
		return ErrNoID
	}
	if r.Source == "" {
		return ErrNoSource
	}
	switch {
	case r.Price == 0:
		return &IncompleteError{Field: "price", ID: r.ID}
	case r.Make == "":
		return &IncompleteError{Field: "make", ID: r.ID}
	case r.Year == 0:
		return &IncompleteError{Field: "year", ID: r.ID}
	case r.Mileage == 0:
		return &IncompleteError{Field: "mileage", ID: r.ID}
	case r.Engine == "":
		return &IncompleteError{Field: "engine", ID: r.ID}
	case r.Gearbox == "":
		return &IncompleteError{Field: "gearbox", ID: r.ID}
	}
	return nil
}
