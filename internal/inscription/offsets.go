package inscription

import "github.com/pkg/errors"

// CalcInputOffsets returns, for a transaction with the given per-input
// prevout values and per-output values, the starting satoshi offset of
// each input within the transaction's flattened input space, after
// accounting for the miner fee "leak" from the end of the input list.
//
// Grounded verbatim on original_source's InscriptionSearcher::calc_offsets:
// inscriptions are tracked by cumulative satoshi position, and the
// convention (inherited from ordinals) is that the fee is paid out of the
// *last* inputs' value, so those trailing satoshis never make it into any
// output and must be excluded from the offset accounting before the
// prefix sums are computed.
func CalcInputOffsets(inputValues []int64, outputValues []int64) ([]uint64, error) {
	var spend, sentOut int64
	for _, v := range inputValues {
		spend += v
	}
	for _, v := range outputValues {
		sentOut += v
	}
	fee := spend - sentOut
	if fee < 0 {
		return nil, errors.New("inscription: negative fee (outputs exceed inputs)")
	}

	values := append([]int64(nil), inputValues...)
	for fee > 0 && len(values) > 0 {
		last := values[len(values)-1]
		if last > fee {
			values[len(values)-1] = last - fee
			fee = 0
			break
		}
		fee -= last
		values = values[:len(values)-1]
	}

	offsets := make([]uint64, len(inputValues))
	var acc uint64
	for i := range values {
		offsets[i] = acc
		acc += uint64(values[i])
	}
	// Inputs fully consumed by the fee (dropped from `values`) have no
	// valid starting offset; any inscription located on their satoshis is
	// unrecoverable ("leaked" to the miner) and the assembler must treat
	// a lookup into this tail as a leak, not a panic.
	for i := len(values); i < len(offsets); i++ {
		offsets[i] = acc
	}
	return offsets, nil
}

// OutputIndexByOffset maps a global output-space offset to (vout, offset
// within that output), using a precomputed cumulative-value prefix built
// by OutputPrefixes. Returns an error if offset falls past the end of
// every output (the inscription's value "leaked" to the miner fee).
func OutputIndexByOffset(offset uint64, prefixes []uint64) (vout uint32, innerOffset uint64, err error) {
	if len(prefixes) == 0 {
		return 0, 0, errors.Errorf("inscription: leaked, offset %d with no outputs", offset)
	}
	total := prefixes[len(prefixes)-1]
	if offset >= total {
		return 0, 0, errors.Errorf("inscription: leaked, offset %d >= total output %d", offset, total)
	}

	var prevBound uint64
	for i, bound := range prefixes {
		if offset < bound {
			return uint32(i), offset - prevBound, nil
		}
		prevBound = bound
	}
	return 0, 0, errors.New("inscription: offset exhausted prefixes")
}

// OutputPrefixes precomputes the cumulative-value prefix sums of a
// transaction's outputs, reused across every input offset lookup for
// that transaction.
func OutputPrefixes(outputValues []int64) []uint64 {
	out := make([]uint64, len(outputValues))
	var acc uint64
	for i, v := range outputValues {
		acc += uint64(v)
		out[i] = acc
	}
	return out
}
