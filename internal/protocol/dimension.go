package protocol

import "encoding/binary"

// The limbo world's registry data. Real servers send their full dimension
// and biome registries here; the synthetic world only needs the single
// overworld entry a vanilla client will accept.

func (b *nbtBuilder) putDouble(name string, value float64) *nbtBuilder {
	b.buf.WriteByte(tagDouble)
	b.writeName(name)
	_ = binary.Write(&b.buf, binary.BigEndian, value)
	return b
}

func writeDimensionElement(b *nbtBuilder) {
	b.putByte("piglin_safe", 0).
		putByte("natural", 1).
		putFloat("ambient_light", 0).
		putString("infiniburn", "minecraft:infiniburn_overworld").
		putByte("respawn_anchor_works", 0).
		putByte("has_skylight", 1).
		putByte("bed_works", 1).
		putString("effects", "minecraft:overworld").
		putByte("has_raids", 0).
		putInt("logical_height", 256).
		putDouble("coordinate_scale", 1).
		putByte("ultrawarm", 0).
		putByte("has_ceiling", 0)
}

// DimensionCodec builds the registry codec compound for the limbo join
// packet on versions with WorldMetadata.
func DimensionCodec() []byte {
	b := &nbtBuilder{}
	b.beginCompound("")

	b.beginCompound("minecraft:dimension_type").
		putString("type", "minecraft:dimension_type").
		beginListOfCompounds("value", 1).
		beginAnonCompound().
		putString("name", "minecraft:overworld").
		putInt("id", 0)
	b.beginCompound("element")
	writeDimensionElement(b)
	b.end() // element
	b.end() // list entry
	b.end() // minecraft:dimension_type

	b.beginCompound("minecraft:worldgen/biome").
		putString("type", "minecraft:worldgen/biome").
		beginListOfCompounds("value", 1).
		beginAnonCompound().
		putString("name", "minecraft:plains").
		putInt("id", 1)
	b.beginCompound("element").
		putString("precipitation", "none").
		putFloat("temperature", 0.5).
		putFloat("downfall", 0.5).
		putString("category", "plains").
		putFloat("depth", 0.125).
		putFloat("scale", 0.05)
	b.beginCompound("effects").
		putInt("sky_color", 0x78A7FF).
		putInt("water_fog_color", 0x050533).
		putInt("fog_color", 0xC0D8FF).
		putInt("water_color", 0x3F76E4)
	b.end() // effects
	b.end() // element
	b.end() // list entry
	b.end() // minecraft:worldgen/biome

	b.end() // root
	return b.bytes()
}

// OverworldDimension builds the dimension compound referenced by the limbo
// join packet.
func OverworldDimension() []byte {
	b := &nbtBuilder{}
	b.beginCompound("")
	writeDimensionElement(b)
	b.end()
	return b.bytes()
}

// EmptyHeightmaps builds the placeholder heightmap compound for the
// fabricated limbo chunk; clients accept an empty compound here.
func EmptyHeightmaps() []byte {
	b := &nbtBuilder{}
	b.beginCompound("")
	b.end()
	return b.bytes()
}
