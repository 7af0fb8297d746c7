package hostapi

// MappingView is a read-only view that is sent to clients as a plain map.
type MappingView interface {
	Mapping() map[string]interface{}
}

// Mapping is a MappingView over a map.
type Mapping map[string]interface{}

func (m Mapping) Mapping() map[string]interface{} {
	return m
}

// Opaque values are meaningful only inside the host and are sent as null.
type Opaque interface {
	OpaqueHandle()
}

// Loader is the opaque loader handle every module carries.
type Loader struct {
	Module string
}

func (Loader) OpaqueHandle() {}
