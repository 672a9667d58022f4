package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/TerriaJS/terriajs-sub017/internal/geojson"
	"github.com/TerriaJS/terriajs-sub017/internal/model"
	"github.com/TerriaJS/terriajs-sub017/internal/strata"
)

// mvtContentType is the media type of encoded vector tiles.
const mvtContentType = "application/vnd.mapbox-vector-tile"

func (s *Server) item(c echo.Context) (model.Item, error) {
	it, ok := s.cat.Item(c.Param("id"))
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no item "+strconv.Quote(c.Param("id")))
	}
	return it, nil
}

func (s *Server) mappable(c echo.Context) (model.Mappable, error) {
	it, err := s.item(c)
	if err != nil {
		return nil, err
	}
	m, ok := it.(model.Mappable)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "item "+it.ID()+" is not mappable")
	}
	return m, nil
}

func (s *Server) groups(c echo.Context) error {
	return c.JSON(http.StatusOK, s.cat.Root())
}

func (s *Server) listItems(c echo.Context) error {
	typ := c.QueryParam("type")
	out := []itemSummary{}
	for _, it := range s.cat.Items() {
		if typ != "" && it.Type() != typ {
			continue
		}
		out = append(out, summary(it))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getItem(c echo.Context) error {
	it, err := s.item(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detail(it))
}

// loadItem loads metadata, and map items unless mapItems=false.
func (s *Server) loadItem(c echo.Context) error {
	it, err := s.item(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v := loadView{Metadata: result(it.LoadMetadata(ctx))}
	if m, ok := it.(model.Mappable); ok && c.QueryParam("mapItems") != "false" {
		r := result(m.LoadMapItems(ctx))
		v.MapItems = &r
	}
	status := http.StatusOK
	if !v.Metadata.OK || (v.MapItems != nil && !v.MapItems.OK) {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, v)
}

func (s *Server) mapItems(c echo.Context) error {
	m, err := s.mappable(c)
	if err != nil {
		return err
	}
	if r := m.LoadMapItems(c.Request().Context()); !result(r).OK {
		return c.JSON(http.StatusUnprocessableEntity, result(r))
	}
	out := []mapItemView{}
	for _, mi := range m.MapItems() {
		out = append(out, mapItemView{Kind: mi.Kind(), Item: mi})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) table(c echo.Context) error {
	m, err := s.mappable(c)
	if err != nil {
		return err
	}
	th, ok := m.(model.TableHolder)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "item "+m.ID()+" has no table")
	}
	if r := m.LoadMapItems(c.Request().Context()); !result(r).OK {
		return c.JSON(http.StatusUnprocessableEntity, result(r))
	}
	return c.JSON(http.StatusOK, columns(th))
}

func (s *Server) tile(c echo.Context) error {
	z, errZ := strconv.Atoi(c.Param("z"))
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(c.Param("y"), ".mvt"))
	if errZ != nil || errX != nil || errY != nil || z > geojson.MaxTileZoom {
		return echo.NewHTTPError(http.StatusBadRequest, "tile coordinates must be integers z/x/y.mvt")
	}
	m, err := s.mappable(c)
	if err != nil {
		return err
	}
	if r := m.LoadMapItems(c.Request().Context()); !result(r).OK {
		return c.JSON(http.StatusUnprocessableEntity, result(r))
	}
	src, err := tileSource(m.MapItems())
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	data, err := src.Tile(z, x, y)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.Blob(http.StatusOK, mvtContentType, data)
}

// patchTraits writes the body to the user stratum. Null values clear a
// trait. Values that fail to coerce give a 422, but the valid ones are
// still applied, persisted and reflected in the map items.
func (s *Server) patchTraits(c echo.Context) error {
	it, err := s.item(c)
	if err != nil {
		return err
	}
	var body map[string]any
	if err := c.Echo().JSONSerializer.Deserialize(c, &body); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return err
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	updateErr := it.UpdateFromJSON(strata.User, body)
	if inv, ok := it.(interface{ InvalidateMapItems() }); ok {
		inv.InvalidateMapItems()
	}
	if s.store != nil {
		user := it.Strata().Snapshot(strata.User)
		if err := s.store.SaveUserStratum(c.Request().Context(), it.ID(), user); err != nil {
			s.logger.Warnw("user stratum not saved", "item", it.ID(), "error", err)
		}
	}
	if updateErr != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, updateErr.Error())
	}
	return c.JSON(http.StatusOK, detail(it))
}
