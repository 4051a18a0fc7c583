package core

import "math"

// Building describes a single rectangular residential building divided
// into a grid of rooms. The multi-BSS scenario places one BSS per room,
// so room boundaries double as wall positions for the propagation model.
type Building struct {
	MinX, MaxX float64 // metres
	MinY, MaxY float64
	MinZ, MaxZ float64

	RoomsX int // number of rooms along the x axis
	RoomsY int // number of rooms along the y axis
	Floors int
}

// BuildingInfo captures where a node sits relative to a building: the
// indoor flag and the room/floor indices used to count penetrated
// walls and floors between two endpoints.
type BuildingInfo struct {
	Indoor bool
	Floor  int
	RoomX  int
	RoomY  int
}

// IsInside reports whether the position falls within the building volume.
func (b *Building) IsInside(pos Vec3) bool {
	return pos.X >= b.MinX && pos.X <= b.MaxX &&
		pos.Y >= b.MinY && pos.Y <= b.MaxY &&
		pos.Z >= b.MinZ && pos.Z <= b.MaxZ
}

// LocateNode derives the BuildingInfo for a position. Outdoor positions
// get Indoor=false and zeroed indices.
func (b *Building) LocateNode(pos Vec3) BuildingInfo {
	if b == nil || !b.IsInside(pos) {
		return BuildingInfo{}
	}
	roomX := gridIndex(pos.X, b.MinX, b.MaxX, b.RoomsX)
	roomY := gridIndex(pos.Y, b.MinY, b.MaxY, b.RoomsY)
	floor := gridIndex(pos.Z, b.MinZ, b.MaxZ, b.Floors)
	return BuildingInfo{
		Indoor: true,
		Floor:  floor,
		RoomX:  roomX,
		RoomY:  roomY,
	}
}

// FloorsBetween returns the number of floors crossed by a link between
// two indoor endpoints.
func FloorsBetween(a, b BuildingInfo) int {
	return abs(a.Floor - b.Floor)
}

// WallsBetween returns the number of walls crossed, counted along each
// room-grid axis independently.
func WallsBetween(a, b BuildingInfo) int {
	return abs(a.RoomX-b.RoomX) + abs(a.RoomY-b.RoomY)
}

func gridIndex(v, min, max float64, cells int) int {
	if cells <= 1 || max <= min {
		return 0
	}
	idx := int(math.Floor((v - min) / (max - min) * float64(cells)))
	if idx < 0 {
		idx = 0
	} else if idx >= cells {
		idx = cells - 1
	}
	return idx
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
