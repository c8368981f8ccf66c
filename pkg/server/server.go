// Package server exposes bridge volumes over the gRPC file service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/example/ntfsbridge/pkg/api"
	"github.com/example/ntfsbridge/pkg/bridge"
	"github.com/example/ntfsbridge/pkg/efi"
)

// Server implements the file service over a set of bridge volumes. Each
// open file instance is published to clients as an opaque handle.
type Server struct {
	// Configuration
	config *Config

	// Served volumes, by device path
	volumes map[string]*bridge.Volume

	// Open handle table
	handleMu   sync.RWMutex
	handles    map[uint64]*bridge.File
	nextHandle uint64

	// Request sequence for log correlation
	reqSeq uint64

	// Worker pool for limiting concurrent requests
	workerPool chan struct{}
}

// NewServer creates a server for the given volumes.
func NewServer(config *Config, volumes []*bridge.Volume) (*Server, error) {
	byDevice := make(map[string]*bridge.Volume, len(volumes))
	for _, v := range volumes {
		if _, dup := byDevice[v.Device()]; dup {
			return nil, fmt.Errorf("duplicate device %q", v.Device())
		}
		byDevice[v.Device()] = v
	}
	return &Server{
		config:     config,
		volumes:    byDevice,
		handles:    make(map[uint64]*bridge.File),
		workerPool: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Start launches the server and blocks until it stops serving.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve runs the gRPC server on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	grpcServer := grpc.NewServer()
	api.RegisterFileServiceServer(grpcServer, s)
	log.Printf("bridge server starting on %s", lis.Addr())
	if err := grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// acquireWorker gets a worker from the pool or gives up with the context.
func (s *Server) acquireWorker(ctx context.Context) error {
	select {
	case s.workerPool <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseWorker returns a worker to the pool.
func (s *Server) releaseWorker() {
	<-s.workerPool
}

// processRequest handles the common request processing logic: logging,
// concurrency limiting and metrics. The operation itself reports its host
// status through the response, never through a transport error.
func (s *Server) processRequest(ctx context.Context, op string,
	process func() (interface{}, efi.Status)) (interface{}, error) {

	reqID := atomic.AddUint64(&s.reqSeq, 1)
	clientAddr := "unknown"
	if p, ok := peer.FromContext(ctx); ok {
		clientAddr = p.Addr.String()
	}
	LogRequest(op, reqID, clientAddr)
	startTime := time.Now()

	if err := s.acquireWorker(ctx); err != nil {
		LogError(op, reqID, err)
		return nil, err
	}
	defer s.releaseWorker()

	result, status := process()

	duration := time.Since(startTime)
	opsTotal.WithLabelValues(op, status.String()).Inc()
	opDuration.WithLabelValues(op).Observe(duration.Seconds())
	LogResponse(op, reqID, status, duration)
	return result, nil
}

func (s *Server) addHandle(f *bridge.File) uint64 {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	s.nextHandle++
	h := s.nextHandle
	s.handles[h] = f
	openHandles.Inc()
	return h
}

func (s *Server) lookupHandle(h uint64) (*bridge.File, bool) {
	s.handleMu.RLock()
	defer s.handleMu.RUnlock()
	f, ok := s.handles[h]
	return f, ok
}

func (s *Server) removeHandle(h uint64) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	if _, ok := s.handles[h]; ok {
		delete(s.handles, h)
		openHandles.Dec()
	}
}

// ListVolumes implements the ListVolumes RPC method.
func (s *Server) ListVolumes(ctx context.Context, req *api.ListVolumesRequest) (*api.ListVolumesResponse, error) {
	result, err := s.processRequest(ctx, "ListVolumes", func() (interface{}, efi.Status) {
		infos := make([]api.VolumeInfo, 0, len(s.volumes))
		for _, v := range s.volumes {
			infos = append(infos, api.VolumeInfo{
				Device:  v.Device(),
				Label:   v.Label(),
				Mounted: v.Mounted(),
			})
		}
		sort.Slice(infos, func(i, j int) bool { return infos[i].Device < infos[j].Device })
		return &api.ListVolumesResponse{Status: efi.Success, Volumes: infos}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.ListVolumesResponse), nil
}

// OpenVolume implements the OpenVolume RPC method.
func (s *Server) OpenVolume(ctx context.Context, req *api.OpenVolumeRequest) (*api.OpenVolumeResponse, error) {
	result, err := s.processRequest(ctx, "OpenVolume", func() (interface{}, efi.Status) {
		v, ok := s.volumes[req.Device]
		if !ok {
			return &api.OpenVolumeResponse{Status: efi.NotFound}, efi.NotFound
		}
		root, oerr := v.OpenVolume()
		if oerr != nil {
			st := efi.StatusOf(oerr)
			return &api.OpenVolumeResponse{Status: st}, st
		}
		h := s.addHandle(root)
		return &api.OpenVolumeResponse{Status: efi.Success, Handle: h}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.OpenVolumeResponse), nil
}

// Open implements the Open RPC method.
func (s *Server) Open(ctx context.Context, req *api.OpenRequest) (*api.OpenResponse, error) {
	result, err := s.processRequest(ctx, "Open", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.OpenResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		nf, oerr := f.Open(req.Name, efi.OpenMode(req.Mode), req.Attributes)
		if oerr != nil {
			st := efi.StatusOf(oerr)
			return &api.OpenResponse{Status: st}, st
		}
		h := s.addHandle(nf)
		return &api.OpenResponse{Status: efi.Success, Handle: h}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.OpenResponse), nil
}

// Close implements the Close RPC method. The handle is always released.
func (s *Server) Close(ctx context.Context, req *api.CloseRequest) (*api.StatusResponse, error) {
	result, err := s.processRequest(ctx, "Close", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.StatusResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		s.removeHandle(req.Handle)
		f.Close()
		return &api.StatusResponse{Status: efi.Success}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.StatusResponse), nil
}

// Delete implements the Delete RPC method.
func (s *Server) Delete(ctx context.Context, req *api.DeleteRequest) (*api.StatusResponse, error) {
	result, err := s.processRequest(ctx, "Delete", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.StatusResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		s.removeHandle(req.Handle)
		st := efi.Success
		if derr := f.Delete(); derr != nil {
			st = efi.StatusOf(derr)
		}
		return &api.StatusResponse{Status: st}, st
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.StatusResponse), nil
}

// Read implements the Read RPC method.
func (s *Server) Read(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	result, err := s.processRequest(ctx, "Read", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.ReadResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		length := int(req.Length)
		if length > s.config.MaxReadSize {
			length = s.config.MaxReadSize
		}
		buf := make([]byte, length)
		n, rerr := f.Read(buf)
		if rerr != nil {
			st := efi.StatusOf(rerr)
			resp := &api.ReadResponse{Status: st}
			var se *efi.SizeError
			if errors.As(rerr, &se) {
				resp.Needed = uint32(se.Needed)
			}
			return resp, st
		}
		return &api.ReadResponse{Status: efi.Success, Data: buf[:n]}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.ReadResponse), nil
}

// Write implements the Write RPC method.
func (s *Server) Write(ctx context.Context, req *api.WriteRequest) (*api.WriteResponse, error) {
	result, err := s.processRequest(ctx, "Write", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.WriteResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		if len(req.Data) > s.config.MaxWriteSize {
			return &api.WriteResponse{Status: efi.BadBufferSize}, efi.BadBufferSize
		}
		n, werr := f.Write(req.Data)
		if werr != nil {
			st := efi.StatusOf(werr)
			return &api.WriteResponse{Status: st, Count: uint32(n)}, st
		}
		return &api.WriteResponse{Status: efi.Success, Count: uint32(n)}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.WriteResponse), nil
}

// GetPosition implements the GetPosition RPC method.
func (s *Server) GetPosition(ctx context.Context, req *api.GetPositionRequest) (*api.GetPositionResponse, error) {
	result, err := s.processRequest(ctx, "GetPosition", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.GetPositionResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		pos, perr := f.GetPosition()
		if perr != nil {
			st := efi.StatusOf(perr)
			return &api.GetPositionResponse{Status: st}, st
		}
		return &api.GetPositionResponse{Status: efi.Success, Position: pos}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.GetPositionResponse), nil
}

// SetPosition implements the SetPosition RPC method.
func (s *Server) SetPosition(ctx context.Context, req *api.SetPositionRequest) (*api.StatusResponse, error) {
	result, err := s.processRequest(ctx, "SetPosition", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.StatusResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		st := efi.Success
		if perr := f.SetPosition(req.Position); perr != nil {
			st = efi.StatusOf(perr)
		}
		return &api.StatusResponse{Status: st}, st
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.StatusResponse), nil
}

// GetInfo implements the GetInfo RPC method. The record travels in its
// encoded wire form.
func (s *Server) GetInfo(ctx context.Context, req *api.GetInfoRequest) (*api.GetInfoResponse, error) {
	result, err := s.processRequest(ctx, "GetInfo", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.GetInfoResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		var data []byte
		var gerr error
		switch efi.InfoType(req.Type) {
		case efi.InfoFile:
			var info *efi.FileInfo
			info, gerr = f.Info()
			if gerr == nil {
				data = make([]byte, info.EncodedSize())
				info.Encode(data)
			}
		case efi.InfoFileSystem:
			var info *efi.FileSystemInfo
			info, gerr = f.FileSystemInfo()
			if gerr == nil {
				data = make([]byte, info.EncodedSize())
				info.Encode(data)
			}
		case efi.InfoVolumeLabel:
			var label string
			label, gerr = f.VolumeLabel()
			if gerr == nil {
				data = make([]byte, efi.LabelSize(label))
				efi.EncodeLabel(data, label)
			}
		default:
			return &api.GetInfoResponse{Status: efi.Unsupported}, efi.Unsupported
		}
		if gerr != nil {
			st := efi.StatusOf(gerr)
			return &api.GetInfoResponse{Status: st}, st
		}
		return &api.GetInfoResponse{Status: efi.Success, Data: data}, efi.Success
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.GetInfoResponse), nil
}

// SetInfo implements the SetInfo RPC method.
func (s *Server) SetInfo(ctx context.Context, req *api.SetInfoRequest) (*api.StatusResponse, error) {
	result, err := s.processRequest(ctx, "SetInfo", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.StatusResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		var serr error
		switch efi.InfoType(req.Type) {
		case efi.InfoFile:
			info, derr := efi.DecodeFileInfo(req.Data)
			if derr != nil {
				serr = derr
			} else {
				serr = f.SetInfo(info)
			}
		case efi.InfoFileSystem:
			info, derr := efi.DecodeFileSystemInfo(req.Data)
			if derr != nil {
				serr = derr
			} else {
				serr = f.SetVolumeLabel(info.Label)
			}
		case efi.InfoVolumeLabel:
			label, derr := efi.DecodeLabel(req.Data)
			if derr != nil {
				serr = derr
			} else {
				serr = f.SetVolumeLabel(label)
			}
		default:
			return &api.StatusResponse{Status: efi.Unsupported}, efi.Unsupported
		}
		st := efi.StatusOf(serr)
		return &api.StatusResponse{Status: st}, st
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.StatusResponse), nil
}

// Flush implements the Flush RPC method.
func (s *Server) Flush(ctx context.Context, req *api.FlushRequest) (*api.StatusResponse, error) {
	result, err := s.processRequest(ctx, "Flush", func() (interface{}, efi.Status) {
		f, ok := s.lookupHandle(req.Handle)
		if !ok {
			return &api.StatusResponse{Status: efi.InvalidParameter}, efi.InvalidParameter
		}
		st := efi.Success
		if ferr := f.Flush(); ferr != nil {
			st = efi.StatusOf(ferr)
		}
		return &api.StatusResponse{Status: st}, st
	})
	if err != nil {
		return nil, err
	}
	return result.(*api.StatusResponse), nil
}
