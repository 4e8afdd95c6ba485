package record

import "strconv"

// Header is the fixed CSV column order.
var Header = []string{
	"id", "source", "make", "model", "title", "currency", "price", "mileage",
	"year", "month", "engine", "gearbox", "power", "cc", "phone", "location",
	"seller_name", "view_count", "equipment", "top", "vip", "sold", "dealer",
	"created_on", "updated_on",
}

// IDColumn is the index of the id column in Header.
const IDColumn = 0

// Row renders r in Header order. Optional numeric fields that were never
// parsed are emitted as empty strings.
func (r Record) Row() []string {
	return []string{
		r.ID,
		r.Source,
		r.Make,
		r.Model,
		r.Title,
		r.Currency.String(),
		strconv.FormatUint(r.Price, 10),
		strconv.FormatUint(r.Mileage, 10),
		optUint(uint64(r.Year)),
		optUint(uint64(r.Month)),
		string(r.Engine),
		string(r.Gearbox),
		optUint(uint64(r.Power)),
		optUint(uint64(r.CC)),
		r.Phone,
		r.Location,
		r.SellerName,
		optUint(r.ViewCount),
		strconv.FormatUint(r.Equipment, 10),
		strconv.FormatBool(r.Top),
		strconv.FormatBool(r.VIP),
		strconv.FormatBool(r.Sold),
		strconv.FormatBool(r.Dealer),
		r.CreatedOn,
		r.UpdatedOn,
	}
}

func optUint(v uint64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatUint(v, 10)
}
