package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"halcon/internal/browser"
	"halcon/internal/domain"
	"halcon/internal/normalize"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// selectorChain is an ordered list of CSS selectors tried until one matches.
type selectorChain []string

// Container candidates, most specific first. The marketplace reshuffles its
// class names regularly; widening the cascade here is cheaper than chasing
// every markup change.
var containerSelectors = selectorChain{
	"li.ui-search-layout__item",
	".ui-search-result__wrapper",
	".ui-search-layout__item",
	`li[class*="ui-search"]`,
	`div[class*="ui-search-result"]`,
}

// noResultsSelector confirms an explicit empty result page as opposed to a
// page whose markup drifted away from every container candidate.
const noResultsSelector = ".ui-search-rescue__title"

// Per-field chains: primary selector, then secondary, then give up. Title,
// price and link are required; everything else degrades to a default.
var (
	titleChain     = selectorChain{".ui-search-item__title", ".ui-search-item__title-label"}
	priceChain     = selectorChain{".andes-money-amount__fraction", ".price-tag-fraction"}
	linkChain      = selectorChain{"a.ui-search-link", "a.ui-search-result__content"}
	thumbChain     = selectorChain{"img.ui-search-result-image__element", "img.ui-search-result__image"}
	conditionChain = selectorChain{".ui-search-item__group__element--condition"}
	shippingChain  = selectorChain{".ui-search-item__shipping", ".ui-pb-highlight"}
	locationChain  = selectorChain{".ui-search-item__location-label"}
)

// LiveStrategy scrapes the rendered search result page through the shared
// browser session.
type LiveStrategy struct {
	session         *browser.Session
	navTimeout      time.Duration
	settleDelay     time.Duration
	selectorTimeout time.Duration
	logger          *zap.Logger
}

func NewLiveStrategy(session *browser.Session, navTimeout, settleDelay time.Duration, logger *zap.Logger) *LiveStrategy {
	return &LiveStrategy{
		session:         session,
		navTimeout:      navTimeout,
		settleDelay:     settleDelay,
		selectorTimeout: 5 * time.Second,
		logger:          logger,
	}
}

func (s *LiveStrategy) Tier() domain.Tier { return domain.TierLive }

// Fetch navigates to the canonical search URL on a fresh page, locates
// listing containers through the selector cascade and extracts each one
// independently. The page is released on every exit path; a navigation or
// session failure is a hard error, zero matches is not.
func (s *LiveStrategy) Fetch(ctx context.Context, query domain.StructuredQuery) ([]domain.Listing, error) {
	pageCtx, release, err := s.session.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNavigation, err)
	}
	defer release()

	searchURL := BuildSearchURL(query)
	s.logger.Info("Navigating to search page", zap.String("url", searchURL))

	navCtx, cancel := context.WithTimeout(pageCtx, s.navTimeout)
	defer cancel()

	err = chromedp.Run(navCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "es-CO,es;q=0.9,en;q=0.8",
		}),
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body"),
		// Client-side rendering keeps going after the document is ready.
		chromedp.Sleep(s.settleDelay),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	containers, selector := s.findContainers(pageCtx)
	if len(containers) == 0 {
		if s.hasNoResultsMarker(pageCtx) {
			s.logger.Info("Marketplace reported no results", zap.String("product_name", query.ProductName))
		} else {
			s.logger.Warn("No containers matched any selector", zap.String("url", searchURL))
		}
		return []domain.Listing{}, nil
	}

	s.logger.Info("Found listing containers",
		zap.Int("count", len(containers)),
		zap.String("selector", selector),
	)

	if len(containers) > query.NumResults {
		containers = containers[:query.NumResults]
	}

	listings := make([]domain.Listing, 0, len(containers))
	for _, container := range containers {
		listing, err := s.extractListing(pageCtx, container)
		if err != nil {
			// One broken card never aborts the batch.
			s.logger.Debug("Skipping container", zap.Error(err))
			continue
		}
		listings = append(listings, listing)
	}

	s.logger.Info("Live extraction complete",
		zap.Int("extracted", len(listings)),
		zap.Int("containers", len(containers)),
	)
	return listings, nil
}

// findContainers tries each container selector in priority order, giving
// every candidate a bounded wait, and stops at the first non-empty match.
func (s *LiveStrategy) findContainers(pageCtx context.Context) ([]*cdp.Node, string) {
	for _, sel := range containerSelectors {
		waitCtx, cancel := context.WithTimeout(pageCtx, s.selectorTimeout)
		var nodes []*cdp.Node
		err := chromedp.Run(waitCtx, chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll))
		cancel()
		if err == nil && len(nodes) > 0 {
			return nodes, sel
		}
		s.logger.Debug("Container selector produced no matches", zap.String("selector", sel))
	}
	return nil, ""
}

func (s *LiveStrategy) hasNoResultsMarker(pageCtx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(pageCtx, s.selectorTimeout)
	defer cancel()

	var nodes []*cdp.Node
	err := chromedp.Run(checkCtx, chromedp.Nodes(noResultsSelector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	return err == nil && len(nodes) > 0
}

// extractListing pulls every field from one container independently.
// Required fields reject the card; optional fields fall back to defaults.
func (s *LiveStrategy) extractListing(pageCtx context.Context, container *cdp.Node) (domain.Listing, error) {
	title, ok := s.text(pageCtx, container, titleChain)
	if !ok {
		return domain.Listing{}, domain.ErrListingMissingTitle
	}

	priceText, ok := s.text(pageCtx, container, priceChain)
	if !ok {
		return domain.Listing{}, domain.ErrListingInvalidPrice
	}
	price, err := normalize.Price(priceText)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("price %q: %w", priceText, err)
	}

	href, ok := s.attr(pageCtx, container, linkChain, "href")
	if !ok {
		return domain.Listing{}, domain.ErrListingMissingURL
	}

	conditionLabel := domain.ConditionLabelNew
	if condText, ok := s.text(pageCtx, container, conditionChain); ok {
		conditionLabel = normalize.Condition(condText)
	}

	freeShipping := false
	if shippingText, ok := s.text(pageCtx, container, shippingChain); ok {
		freeShipping = normalize.FreeShipping(shippingText)
	}

	thumbnail, _ := s.attr(pageCtx, container, thumbChain, "src")
	location, _ := s.text(pageCtx, container, locationChain)

	return domain.NewListing(
		title,
		price,
		domain.DefaultCurrency,
		conditionLabel,
		thumbnail,
		normalize.AbsoluteURL(href),
		freeShipping,
		location,
	)
}

// text resolves the first selector in the chain that matches an element with
// non-empty text under the container.
func (s *LiveStrategy) text(pageCtx context.Context, container *cdp.Node, chain selectorChain) (string, bool) {
	for _, sel := range chain {
		var nodes []*cdp.Node
		err := chromedp.Run(pageCtx, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.FromNode(container), chromedp.AtLeast(0)))
		if err != nil || len(nodes) == 0 {
			continue
		}
		var value string
		if err := chromedp.Run(pageCtx, chromedp.TextContent(sel, &value, chromedp.ByQuery, chromedp.FromNode(container))); err != nil {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value, true
		}
	}
	return "", false
}

// attr resolves the first selector in the chain whose element carries the
// requested attribute.
func (s *LiveStrategy) attr(pageCtx context.Context, container *cdp.Node, chain selectorChain, name string) (string, bool) {
	for _, sel := range chain {
		var nodes []*cdp.Node
		err := chromedp.Run(pageCtx, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.FromNode(container), chromedp.AtLeast(0)))
		if err != nil || len(nodes) == 0 {
			continue
		}
		if value := nodes[0].AttributeValue(name); value != "" {
			return value, true
		}
	}
	return "", false
}
