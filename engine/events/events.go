// Package events encodes records into the fixed-schema bus topics. Every
// payload is a protobuf wire-format message prefixed with its varint length,
// so several payloads can be concatenated and read back in sequence.
package events

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/WessleyAI/autocrawl/engine/record"
)

// Topic names.
const (
	TopicBase        = "base_info"
	TopicPrice       = "price_info"
	TopicConsumption = "consumption_info"
	TopicDetails     = "details_info"
	TopicIDs         = "ids"
	TopicChangeLog   = "change_log"
)

// Topics lists every topic in publishing order.
var Topics = []string{TopicBase, TopicPrice, TopicConsumption, TopicDetails, TopicIDs, TopicChangeLog}

// ErrTruncated is returned when a payload ends inside a message.
var ErrTruncated = errors.New("events: truncated payload")

// Event is one message ready for the bus. Key is the record ID.
type Event struct {
	Topic   string
	Key     string
	Payload []byte
}

// Base carries a record's identity and vehicle description.
type Base struct {
	ID        string
	Source    string
	Make      string
	Model     string
	Title     string
	Year      uint16
	Month     uint8
	Mileage   uint64
	Engine    string
	Gearbox   string
	Power     uint32
	CC        uint32
	Location  string
	URL       string
	CreatedOn string
	RunID     string
}

// Price carries the asking price.
type Price struct {
	ID       string
	Price    uint64
	Currency string
}

// Consumption carries the emissions figures some sources publish.
type Consumption struct {
	ID                  string
	PowerKW             uint32
	ConsumptionCombined float64
	CO2                 uint32
}

// Details carries seller and placement data.
type Details struct {
	ID         string
	Phone      string
	SellerName string
	ViewCount  uint64
	Equipment  uint64
	Top        bool
	VIP        bool
	Sold       bool
	Dealer     bool
	UpdatedOn  string
}

// IDs announces that an advert was seen in a run.
type IDs struct {
	ID     string
	Source string
	RunID  string
}

// Change records a price change for an advert already seen in the run.
type Change struct {
	ID       string
	OldPrice uint64
	NewPrice uint64
	Currency string
	RunID    string
}

// ForRecord returns the base, price, details and ids events for r, plus a
// consumption event when r has any emissions data.
func ForRecord(r record.Record, runID string) []Event {
	out := []Event{
		{Topic: TopicBase, Key: r.ID, Payload: Base{
			ID: r.ID, Source: r.Source, Make: r.Make, Model: r.Model, Title: r.Title,
			Year: r.Year, Month: r.Month, Mileage: r.Mileage,
			Engine: string(r.Engine), Gearbox: string(r.Gearbox),
			Power: r.Power, CC: r.CC, Location: r.Location, URL: r.URL,
			CreatedOn: r.CreatedOn, RunID: runID,
		}.Marshal()},
		{Topic: TopicPrice, Key: r.ID, Payload: Price{ID: r.ID, Price: r.Price, Currency: r.Currency.String()}.Marshal()},
	}
	if r.PowerKW != 0 || r.ConsumptionCombined != 0 || r.CO2 != 0 {
		out = append(out, Event{Topic: TopicConsumption, Key: r.ID, Payload: Consumption{
			ID: r.ID, PowerKW: r.PowerKW, ConsumptionCombined: r.ConsumptionCombined, CO2: r.CO2,
		}.Marshal()})
	}
	out = append(out,
		Event{Topic: TopicDetails, Key: r.ID, Payload: Details{
			ID: r.ID, Phone: r.Phone, SellerName: r.SellerName, ViewCount: r.ViewCount,
			Equipment: r.Equipment, Top: r.Top, VIP: r.VIP, Sold: r.Sold, Dealer: r.Dealer,
			UpdatedOn: r.UpdatedOn,
		}.Marshal()},
		Event{Topic: TopicIDs, Key: r.ID, Payload: IDs{ID: r.ID, Source: r.Source, RunID: runID}.Marshal()},
	)
	return out
}

// ChangeLog returns the change_log event for c.
func ChangeLog(c Change) Event {
	return Event{Topic: TopicChangeLog, Key: c.ID, Payload: c.Marshal()}
}

// Marshal encodes b as a length-prefixed message.
func (b Base) Marshal() []byte {
	var m []byte
	m = appendString(m, 1, b.ID)
	m = appendString(m, 2, b.Source)
	m = appendString(m, 3, b.Make)
	m = appendString(m, 4, b.Model)
	m = appendString(m, 5, b.Title)
	m = appendUint(m, 6, uint64(b.Year))
	m = appendUint(m, 7, uint64(b.Month))
	m = appendUint(m, 8, b.Mileage)
	m = appendString(m, 9, b.Engine)
	m = appendString(m, 10, b.Gearbox)
	m = appendUint(m, 11, uint64(b.Power))
	m = appendUint(m, 12, uint64(b.CC))
	m = appendString(m, 13, b.Location)
	m = appendString(m, 14, b.URL)
	m = appendString(m, 15, b.CreatedOn)
	m = appendString(m, 16, b.RunID)
	return frame(m)
}

// Marshal encodes p as a length-prefixed message.
func (p Price) Marshal() []byte {
	var m []byte
	m = appendString(m, 1, p.ID)
	m = appendUint(m, 2, p.Price)
	m = appendString(m, 3, p.Currency)
	return frame(m)
}

// Marshal encodes c as a length-prefixed message.
func (c Consumption) Marshal() []byte {
	var m []byte
	m = appendString(m, 1, c.ID)
	m = appendUint(m, 2, uint64(c.PowerKW))
	if c.ConsumptionCombined != 0 {
		m = protowire.AppendTag(m, 3, protowire.Fixed64Type)
		m = protowire.AppendFixed64(m, math.Float64bits(c.ConsumptionCombined))
	}
	m = appendUint(m, 4, uint64(c.CO2))
	return frame(m)
}

// Marshal encodes d as a length-prefixed message.
func (d Details) Marshal() []byte {
	var m []byte
	m = appendString(m, 1, d.ID)
	m = appendString(m, 2, d.Phone)
	m = appendString(m, 3, d.SellerName)
	m = appendUint(m, 4, d.ViewCount)
	if d.Equipment != 0 {
		m = protowire.AppendTag(m, 5, protowire.Fixed64Type)
		m = protowire.AppendFixed64(m, d.Equipment)
	}
	m = appendBool(m, 6, d.Top)
	m = appendBool(m, 7, d.VIP)
	m = appendBool(m, 8, d.Sold)
	m = appendBool(m, 9, d.Dealer)
	m = appendString(m, 10, d.UpdatedOn)
	return frame(m)
}

// Marshal encodes i as a length-prefixed message.
func (i IDs) Marshal() []byte {
	var m []byte
	m = appendString(m, 1, i.ID)
	m = appendString(m, 2, i.Source)
	m = appendString(m, 3, i.RunID)
	return frame(m)
}

// Marshal encodes c as a length-prefixed message.
func (c Change) Marshal() []byte {
	var m []byte
	m = appendString(m, 1, c.ID)
	m = appendUint(m, 2, c.OldPrice)
	m = appendUint(m, 3, c.NewPrice)
	m = appendString(m, 4, c.Currency)
	m = appendString(m, 5, c.RunID)
	return frame(m)
}

// Proto3 semantics: zero values are not written.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func frame(msg []byte) []byte {
	out := protowire.AppendVarint(make([]byte, 0, len(msg)+2), uint64(len(msg)))
	return append(out, msg...)
}

// Split reads one length-prefixed message off the front of payload and
// returns it together with the remaining bytes.
func Split(payload []byte) (msg, rest []byte, err error) {
	n, l := protowire.ConsumeVarint(payload)
	if l < 0 {
		return nil, nil, fmt.Errorf("events: length prefix: %w", protowire.ParseError(l))
	}
	payload = payload[l:]
	if uint64(len(payload)) < n {
		return nil, nil, ErrTruncated
	}
	return payload[:n], payload[n:], nil
}
