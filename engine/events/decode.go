package events

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded wire field. Unknown fields are skipped by the walker.
type field struct {
	num protowire.Number
	u   uint64
	s   string
}

// walk splits off one framed message and visits its fields.
func walk(payload []byte, visit func(field)) error {
	msg, _, err := Split(payload)
	if err != nil {
		return err
	}
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return fmt.Errorf("events: tag: %w", protowire.ParseError(n))
		}
		msg = msg[n:]
		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(msg)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(msg)
		case protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(msg)
			f.s = string(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if n < 0 {
			return fmt.Errorf("events: field %d: %w", num, protowire.ParseError(n))
		}
		msg = msg[n:]
		visit(f)
	}
	return nil
}

// DecodeBase reads a base_info payload.
func DecodeBase(payload []byte) (Base, error) {
	var b Base
	err := walk(payload, func(f field) {
		switch f.num {
		case 1:
			b.ID = f.s
		case 2:
			b.Source = f.s
		case 3:
			b.Make = f.s
		case 4:
			b.Model = f.s
		case 5:
			b.Title = f.s
		case 6:
			b.Year = uint16(f.u)
		case 7:
			b.Month = uint8(f.u)
		case 8:
			b.Mileage = f.u
		case 9:
			b.Engine = f.s
		case 10:
			b.Gearbox = f.s
		case 11:
			b.Power = uint32(f.u)
		case 12:
			b.CC = uint32(f.u)
		case 13:
			b.Location = f.s
		case 14:
			b.URL = f.s
		case 15:
			b.CreatedOn = f.s
		case 16:
			b.RunID = f.s
		}
	})
	return b, err
}

// DecodePrice reads a price_info payload.
func DecodePrice(payload []byte) (Price, error) {
	var p Price
	err := walk(payload, func(f field) {
		switch f.num {
		case 1:
			p.ID = f.s
		case 2:
			p.Price = f.u
		case 3:
			p.Currency = f.s
		}
	})
	return p, err
}

// DecodeConsumption reads a consumption_info payload.
func DecodeConsumption(payload []byte) (Consumption, error) {
	var c Consumption
	err := walk(payload, func(f field) {
		switch f.num {
		case 1:
			c.ID = f.s
		case 2:
			c.PowerKW = uint32(f.u)
		case 3:
			c.ConsumptionCombined = math.Float64frombits(f.u)
		case 4:
			c.CO2 = uint32(f.u)
		}
	})
	return c, err
}

// DecodeDetails reads a details_info payload.
func DecodeDetails(payload []byte) (Details, error) {
	var d Details
	err := walk(payload, func(f field) {
		switch f.num {
		case 1:
			d.ID = f.s
		case 2:
			d.Phone = f.s
		case 3:
			d.SellerName = f.s
		case 4:
			d.ViewCount = f.u
		case 5:
			d.Equipment = f.u
		case 6:
			d.Top = protowire.DecodeBool(f.u)
		case 7:
			d.VIP = protowire.DecodeBool(f.u)
		case 8:
			d.Sold = protowire.DecodeBool(f.u)
		case 9:
			d.Dealer = protowire.DecodeBool(f.u)
		case 10:
			d.UpdatedOn = f.s
		}
	})
	return d, err
}

// DecodeIDs reads an ids payload.
func DecodeIDs(payload []byte) (IDs, error) {
	var i IDs
	err := walk(payload, func(f field) {
		switch f.num {
		case 1:
			i.ID = f.s
		case 2:
			i.Source = f.s
		case 3:
			i.RunID = f.s
		}
	})
	return i, err
}

// DecodeChange reads a change_log payload.
func DecodeChange(payload []byte) (Change, error) {
	var c Change
	err := walk(payload, func(f field) {
		switch f.num {
		case 1:
			c.ID = f.s
		case 2:
			c.OldPrice = f.u
		case 3:
			c.NewPrice = f.u
		case 4:
			c.Currency = f.s
		case 5:
			c.RunID = f.s
		}
	})
	return c, err
}

// ErrUnknownTopic is returned by Decode for a topic outside Topics.
var ErrUnknownTopic = errors.New("events: unknown topic")

// Decode reads a payload published on topic into its message struct.
func Decode(topic string, payload []byte) (any, error) {
	switch topic {
	case TopicBase:
		return DecodeBase(payload)
	case TopicPrice:
		return DecodePrice(payload)
	case TopicConsumption:
		return DecodeConsumption(payload)
	case TopicDetails:
		return DecodeDetails(payload)
	case TopicIDs:
		return DecodeIDs(payload)
	case TopicChangeLog:
		return DecodeChange(payload)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
}
