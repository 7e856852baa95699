package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/timmy/reportextract/internal/domain"
)

var feedURLTemplate string

var imodelsCmd = &cobra.Command{
	Use:   "imodels <imodel-id>=<mapping-id>[,<mapping-id>...]...",
	Short: "Extract the given mappings of the given iModels",
	Long: `Start one extraction run per iModel over the listed mappings and watch the
iModel states. Repeating an iModel merges its mappings into one run.

Examples:
  extract imodels im1=m1,m2
  extract imodels im1=m1 im2=m3 --feed-url 'https://example.com/feeds/%s'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIModels,
}

func init() {
	imodelsCmd.Flags().StringVar(&feedURLTemplate, "feed-url", "",
		"feed URL announced on success, %s is replaced by the iModel id")
}

func runIModels(cmd *cobra.Command, args []string) error {
	requests, err := parseExtractionRequests(args)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	tr := newTracker()
	tr.StartIModelExtractions(ctx, requests)

	ids := make([]string, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.IModelID)
	}

	w := newWatcher(cmd.OutOrStdout(), ids, func(ctx context.Context, iModelID string) domain.ExtractionState {
		return tr.GetIModelState(ctx, iModelID, iModelID, feedURL(feedURLTemplate, iModelID))
	}, tr.PendingRuns)
	return w.finish(ctx, interval, !noWatch)
}

// parseExtractionRequests turns "im=m1,m2" arguments into requests, one per
// iModel in first-seen order, merging repeated iModels.
func parseExtractionRequests(args []string) ([]domain.ExtractionRequest, error) {
	var requests []domain.ExtractionRequest
	index := make(map[string]int)
	seen := make(map[string]map[string]bool)

	for _, arg := range args {
		iModelID, list, ok := strings.Cut(arg, "=")
		iModelID = strings.TrimSpace(iModelID)
		if !ok || iModelID == "" {
			return nil, fmt.Errorf("invalid argument %q: want <imodel-id>=<mapping-id>[,<mapping-id>...]", arg)
		}

		i, known := index[iModelID]
		if !known {
			i = len(requests)
			index[iModelID] = i
			seen[iModelID] = make(map[string]bool)
			requests = append(requests, domain.ExtractionRequest{IModelID: iModelID})
		}

		for _, mappingID := range strings.Split(list, ",") {
			mappingID = strings.TrimSpace(mappingID)
			if mappingID == "" || seen[iModelID][mappingID] {
				continue
			}
			seen[iModelID][mappingID] = true
			requests[i].MappingIDs = append(requests[i].MappingIDs, mappingID)
		}
		if len(requests[i].MappingIDs) == 0 {
			return nil, fmt.Errorf("invalid argument %q: no mapping ids", arg)
		}
	}
	return requests, nil
}

func feedURL(template, iModelID string) string {
	if template == "" {
		return ""
	}
	if strings.Contains(template, "%s") {
		return strings.ReplaceAll(template, "%s", iModelID)
	}
	return template
}
