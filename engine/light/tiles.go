package light

import "strconv"

// TileSize is the width and height in pixels of each screen-space tile used for tiled light
// culling. The culling shader reads the same value through //@lumen:const TILE_SIZE.
const TileSize = 16

// AverageLightsPerTile sizes the light index list: each tile gets this many slots on average per
// list, and the opaque and transparent lists are allocated separately. The culling shader reads
// the same value through //@lumen:const AVERAGE_LIGHTS_PER_TILE.
const AverageLightsPerTile = 64

// TileCounts computes the number of whole tiles in each dimension for a render resolution.
// Pixels past the last whole tile are assigned to the last tile by the shaders. Each dimension is
// at least 1.
//
// Parameters:
//   - width: render width in pixels
//   - height: render height in pixels
//
// Returns:
//   - [2]uint32: tile columns and rows
func TileCounts(width, height int) [2]uint32 {
	return [2]uint32{
		uint32(max(width/TileSize, 1)),
		uint32(max(height/TileSize, 1)),
	}
}

// ShaderConstants returns the WGSL literals of the constants shared with the lighting shaders,
// keyed by the name used in //@lumen:const.
func ShaderConstants() map[string]string {
	return map[string]string{
		"TILE_SIZE":               strconv.Itoa(TileSize) + "u",
		"AVERAGE_LIGHTS_PER_TILE": strconv.Itoa(AverageLightsPerTile) + "u",
	}
}
