package engine

type ApplicationConfig struct {
	// Window starting position x axis, if applicable.
	StartPosX uint32
	// Window starting position y axis, if applicable.
	StartPosY uint32
	// TOML file read at startup. When set, the file is watched and the
	// hot-reloadable fields are applied while the engine runs.
	ConfigPath string
	// Root of the watched asset library. Empty disables it.
	AssetDir string
}
