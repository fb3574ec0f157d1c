package assets

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/deferred/engine/core"
)

// ShaderExtension is the suffix of compiled shaders on disk.
const ShaderExtension = ".spv"

type ShaderInfo struct {
	Name       string
	Path       string
	LastLoaded time.Time
}

// ShaderLibrary indexes the compiled shaders of one directory and loads
// them by name, e.g. "gbuffer.vert" for gbuffer.vert.spv. With Watch it
// fires EVENT_CODE_SHADER_CHANGED whenever a shader is rewritten.
type ShaderLibrary struct {
	dir     string
	shaders map[string]ShaderInfo

	mutex sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewShaderLibrary(dir string) (*ShaderLibrary, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "shader directory %s", dir)
	}
	if !fi.IsDir() {
		return nil, errors.Newf("shader directory %s is not a directory", dir)
	}

	sl := &ShaderLibrary{
		dir:     dir,
		shaders: make(map[string]ShaderInfo),
		done:    make(chan struct{}),
	}
	if err := sl.scan(); err != nil {
		return nil, err
	}
	core.LogDebug("shader library %s indexed %d shaders", dir, len(sl.shaders))
	return sl, nil
}

func (sl *ShaderLibrary) scan() error {
	entries, err := os.ReadDir(sl.dir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", sl.dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		sl.handleFileEvent(filepath.Join(sl.dir, e.Name()))
	}
	return nil
}

// Names lists the indexed shaders in lexical order.
func (sl *ShaderLibrary) Names() []string {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()

	names := make([]string, 0, len(sl.shaders))
	for name := range sl.shaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and decodes the named shader.
func (sl *ShaderLibrary) Load(name string) ([]uint32, error) {
	sl.mutex.RLock()
	info, exists := sl.shaders[name]
	sl.mutex.RUnlock()
	if !exists {
		// Not indexed yet; the file may have appeared without a watcher.
		info = ShaderInfo{Name: name, Path: filepath.Join(sl.dir, name+ShaderExtension)}
	}

	data, err := os.ReadFile(info.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}
	code, err := DecodeSPIRV(data)
	if err != nil {
		return nil, errors.Wrapf(err, "shader %s", name)
	}

	info.LastLoaded = time.Now()
	sl.mutex.Lock()
	sl.shaders[name] = info
	sl.mutex.Unlock()
	return code, nil
}

// Watch starts reporting shader changes. It is a no-op when already watching.
func (sl *ShaderLibrary) Watch() error {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	if sl.isClosed {
		return errors.New("shader library already closed")
	}
	if sl.fsnotify != nil {
		return nil
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsWatch.Add(sl.dir); err != nil {
		fsWatch.Close()
		return errors.Wrapf(err, "watching %s", sl.dir)
	}
	sl.fsnotify = fsWatch

	sl.wg.Add(1)
	go sl.start(fsWatch)
	core.LogInfo("watching %s for shader changes", sl.dir)
	return nil
}

func (sl *ShaderLibrary) start(w *fsnotify.Watcher) {
	defer sl.wg.Done()
	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if name, ok := sl.handleFileEvent(e.Name); ok {
					core.LogDebug("shader %s changed on disk", name)
					core.EventFire(core.EVENT_CODE_SHADER_CHANGED, sl, core.EventContext{Path: e.Name})
				}
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				sl.removeShader(e.Name)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			core.LogError("shader watcher: %s", err)

		case <-sl.done:
			return
		}
	}
}

// Close stops the watcher. The library can still load after Close.
func (sl *ShaderLibrary) Close() error {
	sl.mutex.Lock()
	if sl.isClosed {
		sl.mutex.Unlock()
		return nil
	}
	sl.isClosed = true
	close(sl.done)
	w := sl.fsnotify
	sl.mutex.Unlock()

	sl.wg.Wait()
	if w != nil {
		return w.Close()
	}
	return nil
}

// shaderName maps a path to its shader name, false when it is not a shader.
func shaderName(path string) (string, bool) {
	base := filepath.Base(path)
	if filepath.Ext(base) != ShaderExtension {
		return "", false
	}
	name := strings.TrimSuffix(base, ShaderExtension)
	return name, name != ""
}

// Handle the creation or modification of a file
func (sl *ShaderLibrary) handleFileEvent(path string) (string, bool) {
	name, ok := shaderName(path)
	if !ok {
		return "", false
	}

	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	info := sl.shaders[name]
	info.Name = name
	info.Path = path
	sl.shaders[name] = info
	return name, true
}

// Remove the shader from the index if it was deleted
func (sl *ShaderLibrary) removeShader(path string) {
	name, ok := shaderName(path)
	if !ok {
		return
	}
	sl.mutex.Lock()
	defer sl.mutex.Unlock()
	delete(sl.shaders, name)
}
