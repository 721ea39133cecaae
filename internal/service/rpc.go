package service

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/girandola/internal/auth"
	"github.com/mmynk/girandola/internal/models"
)

// MarkerServiceName is the fully-qualified name of the RPC service.
const MarkerServiceName = "girandola.v1.MarkerService"

// Procedure paths.
const (
	ListMarkersProcedure      = "/" + MarkerServiceName + "/ListMarkers"
	CreateMarkerProcedure     = "/" + MarkerServiceName + "/CreateMarker"
	ExportMyMarkersProcedure  = "/" + MarkerServiceName + "/ExportMyMarkers"
	ListContributorsProcedure = "/" + MarkerServiceName + "/ListContributors"
)

type ListMarkersRequest struct{}

type ListMarkersResponse struct {
	Markers []models.Marker `json:"markers"`
}

type CreateMarkerRequest = MarkerInput

type CreateMarkerResponse struct {
	Marker *models.Marker `json:"marker"`
}

type ExportMyMarkersRequest struct{}

type ExportMyMarkersResponse struct {
	Markers []models.Marker `json:"markers"`
}

type ListContributorsRequest struct{}

type ListContributorsResponse struct {
	Contributors []models.Contributor `json:"contributors"`
}

// MarkerRPC adapts MarkerService to connect handlers.
type MarkerRPC struct {
	markers *MarkerService
}

func NewMarkerRPC(markers *MarkerService) *MarkerRPC {
	return &MarkerRPC{markers: markers}
}

func (r *MarkerRPC) ListMarkers(ctx context.Context, req *connect.Request[ListMarkersRequest]) (*connect.Response[ListMarkersResponse], error) {
	markers, err := r.markers.ListMarkers(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListMarkersResponse{Markers: markers}), nil
}

func (r *MarkerRPC) CreateMarker(ctx context.Context, req *connect.Request[CreateMarkerRequest]) (*connect.Response[CreateMarkerResponse], error) {
	// Session first, then payload.
	id := auth.FromContext(ctx)
	if id == nil {
		return nil, toConnectError(ErrUnauthorized)
	}
	lat, lng, err := req.Msg.Coordinates()
	if err != nil {
		return nil, toConnectError(err)
	}

	marker, err := r.markers.CreateMarker(ctx, id, lat, lng)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CreateMarkerResponse{Marker: marker}), nil
}

func (r *MarkerRPC) ExportMyMarkers(ctx context.Context, req *connect.Request[ExportMyMarkersRequest]) (*connect.Response[ExportMyMarkersResponse], error) {
	markers, err := r.markers.ExportMine(ctx, auth.FromContext(ctx))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ExportMyMarkersResponse{Markers: markers}), nil
}

func (r *MarkerRPC) ListContributors(ctx context.Context, req *connect.Request[ListContributorsRequest]) (*connect.Response[ListContributorsResponse], error) {
	contributors, err := r.markers.Contributors(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListContributorsResponse{Contributors: contributors}), nil
}

// NewMarkerServiceHandler builds the HTTP handler for the RPC service and
// returns the path prefix to mount it on.
func NewMarkerServiceHandler(svc *MarkerRPC, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(ListMarkersProcedure, connect.NewUnaryHandler(ListMarkersProcedure, svc.ListMarkers, opts...))
	mux.Handle(CreateMarkerProcedure, connect.NewUnaryHandler(CreateMarkerProcedure, svc.CreateMarker, opts...))
	mux.Handle(ExportMyMarkersProcedure, connect.NewUnaryHandler(ExportMyMarkersProcedure, svc.ExportMyMarkers, opts...))
	mux.Handle(ListContributorsProcedure, connect.NewUnaryHandler(ListContributorsProcedure, svc.ListContributors, opts...))
	return "/" + MarkerServiceName + "/", mux
}

// MarkerServiceClient calls the RPC service.
type MarkerServiceClient struct {
	listMarkers      *connect.Client[ListMarkersRequest, ListMarkersResponse]
	createMarker     *connect.Client[CreateMarkerRequest, CreateMarkerResponse]
	exportMyMarkers  *connect.Client[ExportMyMarkersRequest, ExportMyMarkersResponse]
	listContributors *connect.Client[ListContributorsRequest, ListContributorsResponse]
}

// NewMarkerServiceClient creates a client for the service at baseURL.
func NewMarkerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *MarkerServiceClient {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &MarkerServiceClient{
		listMarkers:      connect.NewClient[ListMarkersRequest, ListMarkersResponse](httpClient, baseURL+ListMarkersProcedure, opts...),
		createMarker:     connect.NewClient[CreateMarkerRequest, CreateMarkerResponse](httpClient, baseURL+CreateMarkerProcedure, opts...),
		exportMyMarkers:  connect.NewClient[ExportMyMarkersRequest, ExportMyMarkersResponse](httpClient, baseURL+ExportMyMarkersProcedure, opts...),
		listContributors: connect.NewClient[ListContributorsRequest, ListContributorsResponse](httpClient, baseURL+ListContributorsProcedure, opts...),
	}
}

func (c *MarkerServiceClient) ListMarkers(ctx context.Context, req *connect.Request[ListMarkersRequest]) (*connect.Response[ListMarkersResponse], error) {
	return c.listMarkers.CallUnary(ctx, req)
}

func (c *MarkerServiceClient) CreateMarker(ctx context.Context, req *connect.Request[CreateMarkerRequest]) (*connect.Response[CreateMarkerResponse], error) {
	return c.createMarker.CallUnary(ctx, req)
}

func (c *MarkerServiceClient) ExportMyMarkers(ctx context.Context, req *connect.Request[ExportMyMarkersRequest]) (*connect.Response[ExportMyMarkersResponse], error) {
	return c.exportMyMarkers.CallUnary(ctx, req)
}

func (c *MarkerServiceClient) ListContributors(ctx context.Context, req *connect.Request[ListContributorsRequest]) (*connect.Response[ListContributorsResponse], error) {
	return c.listContributors.CallUnary(ctx, req)
}

// toConnectError maps service errors to RPC codes. Internal details stay in
// the server log.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return connect.NewError(connect.CodeUnauthenticated, ErrUnauthorized)
	case errors.Is(err, ErrInvalidCoordinates):
		return connect.NewError(connect.CodeInvalidArgument, ErrInvalidCoordinates)
	default:
		return connect.NewError(connect.CodeInternal, errors.New("internal error"))
	}
}
