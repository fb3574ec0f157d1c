package assets

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// SPIRVMagic is the first word of every SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// DecodeSPIRV turns a little endian SPIR-V file into its words.
func DecodeSPIRV(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("SPIR-V size %d is not a positive multiple of 4", len(b))
	}
	byteCode := make([]uint32, len(b)/4)
	for i := range byteCode {
		byteCode[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	if byteCode[0] != SPIRVMagic {
		return nil, errors.Newf("bad SPIR-V magic %#08x", byteCode[0])
	}
	return byteCode, nil
}
